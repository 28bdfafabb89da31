package qdrantvec

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/sway/pkg/vector"
)

func toPayload(doc vector.Document) (payload map[string]*qdrant.Value, err error) {
	// NewValueMap panics on types it cannot represent
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unsupported metadata value: %v", r)
		}
	}()

	m := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		m[k] = v
	}
	m[idField] = doc.ID
	return qdrant.NewValueMap(m), nil
}

func fromPayload(payload map[string]*qdrant.Value) vector.Document {
	doc := vector.Document{Metadata: make(map[string]any, len(payload))}
	for k, v := range payload {
		if k == idField {
			doc.ID = v.GetStringValue()
			continue
		}
		doc.Metadata[k] = fromValue(v)
	}
	return doc
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, f := range kind.StructValue.GetFields() {
			out[k] = fromValue(f)
		}
		return out
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fromValue(item)
		}
		return out
	default:
		return nil
	}
}

// nativeFilter translates the portable filter. Match values other than
// strings, integers and booleans are compared as strings.
func nativeFilter(f vector.Filter) *qdrant.Filter {
	if f.IsZero() {
		return nil
	}

	out := &qdrant.Filter{}
	if len(f.ExcludeIDs) > 0 {
		out.MustNot = []*qdrant.Condition{qdrant.NewHasID(pointIDs(f.ExcludeIDs)...)}
	}

	for k, v := range f.Match {
		var cond *qdrant.Condition
		switch val := v.(type) {
		case string:
			cond = qdrant.NewMatch(k, val)
		case bool:
			cond = qdrant.NewMatchBool(k, val)
		case int:
			cond = qdrant.NewMatchInt(k, int64(val))
		case int64:
			cond = qdrant.NewMatchInt(k, val)
		default:
			cond = qdrant.NewMatch(k, fmt.Sprint(val))
		}
		out.Must = append(out.Must, cond)
	}
	return out
}
