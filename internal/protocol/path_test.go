package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestPathNext(t *testing.T) {
	tests := []struct {
		name     string
		path     Path
		wantHead NodeID
		wantRest Path
		wantOK   bool
	}{
		{name: "empty", path: Path{}, wantOK: false},
		{name: "nil", path: nil, wantOK: false},
		{name: "single", path: Path{"a"}, wantHead: "a", wantRest: Path{}, wantOK: true},
		{name: "deep", path: Path{"a", "b", "c"}, wantHead: "a", wantRest: Path{"b", "c"}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, rest, ok := tt.path.Next()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantHead, head)
			if diff := cmp.Diff(tt.wantRest, rest, cmp.Comparer(func(a, b Path) bool { return a.String() == b.String() })); diff != "" {
				t.Errorf("rest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPathRoutingHops(t *testing.T) {
	// A path of length L is fully consumed after exactly L hops.
	path := Path{"r", "c1", "c2", "c3"}
	var visited []NodeID
	hops := 0
	for {
		head, rest, ok := path.Next()
		if !ok {
			break
		}
		visited = append(visited, head)
		path = rest
		hops++
	}

	assert.Equal(t, 4, hops)
	assert.Equal(t, []NodeID{"r", "c1", "c2", "c3"}, visited)
}

func TestPathPrependDoesNotAlias(t *testing.T) {
	base := Path{"b", "c"}
	first := base.Prepend("a1")
	second := base.Prepend("a2")

	assert.Equal(t, Path{"a1", "b", "c"}, first)
	assert.Equal(t, Path{"a2", "b", "c"}, second)
	assert.Equal(t, Path{"b", "c"}, base)
}

func TestPathNextDoesNotMutate(t *testing.T) {
	path := Path{"a", "b"}
	_, rest, _ := path.Next()
	rest = rest.Prepend("x")

	assert.Equal(t, Path{"a", "b"}, path)
	assert.Equal(t, Path{"x", "b"}, rest)
}

func TestPathBubbleReconstructsDepth(t *testing.T) {
	// Event emitted at depth 3 gains one element per ancestor hop.
	payload := &EventPayload{Path: Path{}}
	for _, hop := range []NodeID{"leaf", "mid", "root"} {
		payload = payload.Bubble(hop)
	}
	assert.Equal(t, Path{"root", "mid", "leaf"}, payload.Path)
}

func TestPathStringRoundTrip(t *testing.T) {
	p := Path{"wrk_1", "wrk_2"}
	assert.Equal(t, "wrk_1/wrk_2", p.String())
	assert.Equal(t, p, ParsePath(p.String()))
	assert.Equal(t, Path{}, ParsePath(""))
}

func TestPathHasPrefix(t *testing.T) {
	p := Path{"a", "b", "c"}
	assert.True(t, p.HasPrefix(Path{"a"}))
	assert.True(t, p.HasPrefix(Path{"a", "b", "c"}))
	assert.False(t, p.HasPrefix(Path{"b"}))
	assert.False(t, p.HasPrefix(Path{"a", "b", "c", "d"}))
}
