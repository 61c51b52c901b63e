package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTaskTree(t *testing.T) {
	t.Parallel()

	t.Run("groups children under parents in input order", func(t *testing.T) {
		t.Parallel()

		tasks := []Task{
			{TaskID: "plan", Name: "Plan"},
			{TaskID: "plan-1", ParentTaskID: "plan", Name: "Scope"},
			{TaskID: "plan-2", ParentTaskID: "plan", Name: "Outline"},
			{TaskID: "exec", Name: "Execute"},
		}

		roots := BuildTaskTree(tasks)
		require.Len(t, roots, 2)
		assert.Equal(t, "plan", roots[0].TaskID)
		assert.Equal(t, "exec", roots[1].TaskID)
		require.Len(t, roots[0].Children, 2)
		assert.Equal(t, "plan-1", roots[0].Children[0].TaskID)
		assert.Equal(t, "plan-2", roots[0].Children[1].TaskID)
	})

	t.Run("orphaned parent reference becomes a root", func(t *testing.T) {
		t.Parallel()

		roots := BuildTaskTree([]Task{
			{TaskID: "a", ParentTaskID: "missing"},
			{TaskID: "b"},
		})
		require.Len(t, roots, 2)
		assert.Equal(t, "a", roots[0].TaskID)
	})

	t.Run("self-parent does not recurse", func(t *testing.T) {
		t.Parallel()

		roots := BuildTaskTree([]Task{{TaskID: "a", ParentTaskID: "a"}})
		require.Len(t, roots, 1)
		assert.Empty(t, roots[0].Children)
	})

	t.Run("child listed before its parent still attaches", func(t *testing.T) {
		t.Parallel()

		roots := BuildTaskTree([]Task{
			{TaskID: "child", ParentTaskID: "parent"},
			{TaskID: "parent"},
		})
		require.Len(t, roots, 1)
		assert.Equal(t, "parent", roots[0].TaskID)
		require.Len(t, roots[0].Children, 1)
		assert.Equal(t, "child", roots[0].Children[0].TaskID)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, BuildTaskTree(nil))
	})
}

func TestSortSteps(t *testing.T) {
	t.Parallel()

	t.Run("numeric ids sort numerically", func(t *testing.T) {
		t.Parallel()

		steps := []Step{{ID: "10"}, {ID: "2"}, {ID: "1"}}
		sortSteps(steps)
		assert.Equal(t, []string{"1", "2", "10"}, []string{steps[0].ID, steps[1].ID, steps[2].ID})
	})

	t.Run("non-numeric ids fall back to lexicographic", func(t *testing.T) {
		t.Parallel()

		steps := []Step{{ID: "b"}, {ID: "a"}, {ID: "3"}}
		sortSteps(steps)
		assert.Equal(t, []string{"3", "a", "b"}, []string{steps[0].ID, steps[1].ID, steps[2].ID})
	})
}
