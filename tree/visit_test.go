package tree

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func num(value string) *Token {
	return &Token{
		Type:  "NUMBER",
		Value: value,
	}
}

func TestTransformer_BottomUp(t *testing.T) {
	// (1 + 2) * 3
	tr := New("mul", []Node{
		New("add", []Node{num("1"), num("2")}),
		num("3"),
	})

	binop := func(f func(a, b float64) float64) func([]any) (any, error) {
		return func(children []any) (any, error) {
			return f(children[0].(float64), children[1].(float64)), nil
		}
	}
	result, err := NewTransformer().
		OnToken("NUMBER", func(tok *Token) (any, error) {
			return strconv.ParseFloat(tok.Value, 64)
		}).
		On("add", binop(func(a, b float64) float64 { return a + b })).
		On("mul", binop(func(a, b float64) float64 { return a * b })).
		Transform(tr)
	require.NoError(t, err)
	require.Equal(t, 9.0, result)
}

func TestTransformer_DefaultRebuildsTree(t *testing.T) {
	tr := New("outer", []Node{
		New("inner", []Node{num("1")}),
	})
	result, err := NewTransformer().Transform(tr)
	require.NoError(t, err)

	rebuilt, ok := result.(*Tree)
	require.True(t, ok)
	require.Equal(t, "outer", rebuilt.Data)
	require.NotSame(t, tr, rebuilt)
	require.Equal(t, tr.String(), rebuilt.String())
}

func TestTransformer_VisitError(t *testing.T) {
	tr := New("outer", []Node{
		New("boom", []Node{num("1")}),
	})
	_, err := NewTransformer().
		On("boom", func(children []any) (any, error) {
			return nil, fmt.Errorf("broken handler")
		}).
		Transform(tr)

	var visitErr *VisitError
	require.True(t, errors.As(err, &visitErr))
	require.Equal(t, "boom", visitErr.Rule)
	require.EqualError(t, visitErr.Cause, "broken handler")
}

func TestTransformer_OnTree(t *testing.T) {
	tr := New("count", []Node{num("1"), num("2"), num("3")})
	result, err := NewTransformer().
		OnTree("count", func(t *Tree, children []any) (any, error) {
			return len(children), nil
		}).
		Transform(tr)
	require.NoError(t, err)
	require.Equal(t, 3, result)
}

func TestVisitor_Order(t *testing.T) {
	tr := New("a", []Node{
		New("b", []Node{New("c", nil)}),
		New("d", nil),
	})

	var topDown []string
	v := NewVisitor().Default(func(t *Tree) error {
		topDown = append(topDown, t.Data)
		return nil
	})
	require.NoError(t, v.VisitTopDown(tr))
	require.Equal(t, []string{"a", "b", "c", "d"}, topDown)

	var bottomUp []string
	v = NewVisitor().Default(func(t *Tree) error {
		bottomUp = append(bottomUp, t.Data)
		return nil
	})
	require.NoError(t, v.VisitBottomUp(tr))
	require.Equal(t, []string{"c", "b", "d", "a"}, bottomUp)
}

func TestVisitor_HandlerSelection(t *testing.T) {
	tr := New("a", []Node{New("b", nil)})

	var seen []string
	v := NewVisitor().
		On("b", func(t *Tree) error {
			seen = append(seen, "handler:"+t.Data)
			return nil
		}).
		Default(func(t *Tree) error {
			seen = append(seen, "default:"+t.Data)
			return nil
		})
	require.NoError(t, v.VisitTopDown(tr))
	require.Equal(t, []string{"default:a", "handler:b"}, seen)
}
