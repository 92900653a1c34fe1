package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/pkg/api"
)

func TestTreeCloneDeepCopies(t *testing.T) {
	orig := api.Tree{
		Name:       "sequence",
		Attributes: map[string]any{"tag": "step1"},
		Children: []api.Tree{
			{Name: "command", Attributes: map[string]any{"if": "${go}"}},
		},
	}

	clone := orig.Clone()
	clone.Attributes["tag"] = "mutated"
	clone.Children[0].Attributes["if"] = "mutated"

	assert.Equal(t, "step1", orig.Attributes["tag"])
	assert.Equal(t, "${go}", orig.Children[0].Attributes["if"])
}

func TestTreeAttrHelpers(t *testing.T) {
	tr := api.Tree{Attributes: map[string]any{
		"tag":     "t1",
		"forget":  "true",
		"nilattr": nil,
	}}

	v, ok := tr.Attr("tag")
	require.True(t, ok)
	assert.Equal(t, "t1", v)

	_, ok = tr.Attr("missing")
	assert.False(t, ok)

	assert.Equal(t, "t1", tr.AttrString("tag"))
	assert.Equal(t, "", tr.AttrString("missing"))

	assert.True(t, tr.AttrBool("forget"))
	assert.False(t, tr.AttrBool("nilattr"))
	assert.False(t, tr.AttrBool("missing"))
}

func TestTreeChild(t *testing.T) {
	tr := api.Tree{Children: []api.Tree{{Name: "a"}, {Name: "b"}}}

	c, ok := tr.Child(1)
	require.True(t, ok)
	assert.Equal(t, "b", c.Name)

	_, ok = tr.Child(5)
	assert.False(t, ok)

	_, ok = tr.Child(-1)
	assert.False(t, ok)
}
