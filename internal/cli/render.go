package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/tidwall/pretty"

	"github.com/roach88/wasmpipe/internal/value"
)

// prettyOptions indents nested documents by two spaces and keeps short
// arrays on one line.
var prettyOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// renderDocument formats v for stdout in the given output mode. The result
// always ends with a newline.
func renderDocument(v value.Value, mode string, color bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch mode {
	case "canonical":
		data, err = value.MarshalCanonical(v)
	default:
		data, err = value.Marshal(v)
	}
	if err != nil {
		return nil, err
	}

	if mode == "pretty" {
		data = pretty.PrettyOptions(data, prettyOptions)
	} else {
		data = append(data, '\n')
	}
	if color {
		data = pretty.Color(data, pretty.TerminalStyle)
	}
	return data, nil
}

func writeDocuments(w io.Writer, docs []value.Value, mode string, color bool) error {
	for _, doc := range docs {
		data, err := renderDocument(doc, mode, color)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// compileQuery parses and compiles a jq filter.
func compileQuery(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return code, nil
}

// runQuery applies the filter to v and returns every value it emits. Object
// order of v is not visible to the filter; emitted objects list their keys
// in canonical order.
func runQuery(ctx context.Context, code *gojq.Code, v value.Value) ([]value.Value, error) {
	var out []value.Value
	iter := code.RunWithContext(ctx, value.ToAny(v))
	for {
		x, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, ok := x.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return out, nil
			}
			return nil, err
		}
		conv, err := value.FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("query result: %w", err)
		}
		out = append(out, conv)
	}
}
