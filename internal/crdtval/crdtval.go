// Package crdtval projects typed Go values onto automerge document trees and
// back. A value is JSON-encoded into a generic tree (objects, arrays, strings,
// numbers, booleans, null) and that tree is materialized as automerge map,
// list and scalar nodes at a path of string segments. Reading reverses the
// mapping and decodes into the caller's target type.
//
// Known lossy projections: counter scalars read back as 0 (the read path has
// no accumulated value for them) and non-finite floats read back as 0.
package crdtval

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/automerge/automerge-go"

	"github.com/basket/taskvault/internal/domain"
)

// WriteAt serializes value and writes it at path, creating intermediate map
// nodes for every segment except the last. The caller owns committing the
// resulting automerge transaction.
func WriteAt(doc *automerge.Doc, path []string, value any) error {
	if len(path) == 0 {
		return domain.Ef(domain.KindInvalidOperation, "crdtval.write", "empty path")
	}
	tree, err := encode(value)
	if err != nil {
		return err
	}
	parent, err := descend(doc.RootMap(), path[:len(path)-1], true)
	if err != nil {
		return err
	}
	return writeValue(parent, path[len(path)-1], tree)
}

// ReadAt walks path through map nodes and decodes the node found at the
// terminal segment into out, which must be a pointer. It reports false with a
// nil error when any segment is absent; structural problems are errors.
func ReadAt(doc *automerge.Doc, path []string, out any) (bool, error) {
	if len(path) == 0 {
		return false, domain.Ef(domain.KindInvalidOperation, "crdtval.read", "empty path")
	}
	parent, err := descend(doc.RootMap(), path[:len(path)-1], false)
	if err != nil {
		return false, err
	}
	if parent == nil {
		return false, nil
	}
	v, err := parent.Get(path[len(path)-1])
	if err != nil {
		return false, domain.E(domain.KindAutomerge, "crdtval.read", err)
	}
	if v.IsVoid() {
		return false, nil
	}
	tree, err := readValue(v)
	if err != nil {
		return false, err
	}
	return true, decodeInto(tree, out)
}

// WriteRoot projects value, which must encode to a JSON object, field by
// field over the document's root map.
func WriteRoot(doc *automerge.Doc, value any) error {
	tree, err := encode(value)
	if err != nil {
		return err
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return domain.Ef(domain.KindConversion, "crdtval.write_root", "value is not an object")
	}
	root := doc.RootMap()
	for _, key := range sortedKeys(obj) {
		if err := writeValue(root, key, obj[key]); err != nil {
			return err
		}
	}
	return nil
}

// ReadRoot reconstructs the whole root map and decodes it into out.
func ReadRoot(doc *automerge.Doc, out any) error {
	tree, err := ReadTree(doc)
	if err != nil {
		return err
	}
	return decodeInto(tree, out)
}

// ReadTree reconstructs the document's root map as a generic tree. Used by
// the diagnostic export path.
func ReadTree(doc *automerge.Doc) (map[string]any, error) {
	tree, err := readMap(doc.RootMap())
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// descend walks segments through map nodes starting at m. With create set,
// absent segments are materialized as empty maps; without it, an absent
// segment yields (nil, nil). A non-map node in the middle of the path is a
// structural error in both modes.
func descend(m *automerge.Map, segments []string, create bool) (*automerge.Map, error) {
	cur := m
	for _, seg := range segments {
		v, err := cur.Get(seg)
		if err != nil {
			return nil, domain.E(domain.KindAutomerge, "crdtval.descend", err)
		}
		switch v.Kind() {
		case automerge.KindMap:
			cur = v.Map()
		case automerge.KindVoid, automerge.KindNull:
			if !create {
				return nil, nil
			}
			if err := cur.Set(seg, automerge.NewMap()); err != nil {
				return nil, domain.E(domain.KindAutomerge, "crdtval.descend", err)
			}
			v, err = cur.Get(seg)
			if err != nil {
				return nil, domain.E(domain.KindAutomerge, "crdtval.descend", err)
			}
			cur = v.Map()
		case automerge.KindList:
			return nil, domain.Ef(domain.KindInvalidOperation, "crdtval.descend",
				"segment %q addresses a list; only numeric indexes can address lists", seg)
		default:
			return nil, domain.Ef(domain.KindInvalidOperation, "crdtval.descend",
				"segment %q descends through a %s node", seg, v.Kind())
		}
	}
	return cur, nil
}

// writeValue materializes tree under key in m.
func writeValue(m *automerge.Map, key string, tree any) error {
	switch t := tree.(type) {
	case nil:
		return wrapSet(m.Set(key, nil))
	case bool:
		return wrapSet(m.Set(key, t))
	case string:
		return wrapSet(m.Set(key, t))
	case json.Number:
		return wrapSet(m.Set(key, numberValue(t)))
	case []any:
		if err := wrapSet(m.Set(key, automerge.NewList())); err != nil {
			return err
		}
		v, err := m.Get(key)
		if err != nil {
			return domain.E(domain.KindAutomerge, "crdtval.write", err)
		}
		return writeList(v.List(), t)
	case map[string]any:
		if err := wrapSet(m.Set(key, automerge.NewMap())); err != nil {
			return err
		}
		v, err := m.Get(key)
		if err != nil {
			return domain.E(domain.KindAutomerge, "crdtval.write", err)
		}
		return writeMap(v.Map(), t)
	default:
		return domain.Ef(domain.KindConversion, "crdtval.write", "unsupported value type %T", tree)
	}
}

func writeMap(m *automerge.Map, obj map[string]any) error {
	for _, key := range sortedKeys(obj) {
		if err := writeValue(m, key, obj[key]); err != nil {
			return err
		}
	}
	return nil
}

// writeList appends items in index order so list positions match the source
// array.
func writeList(l *automerge.List, items []any) error {
	for i, item := range items {
		switch t := item.(type) {
		case nil:
			if err := wrapSet(l.Append(nil)); err != nil {
				return err
			}
		case bool:
			if err := wrapSet(l.Append(t)); err != nil {
				return err
			}
		case string:
			if err := wrapSet(l.Append(t)); err != nil {
				return err
			}
		case json.Number:
			if err := wrapSet(l.Append(numberValue(t))); err != nil {
				return err
			}
		case []any:
			if err := wrapSet(l.Append(automerge.NewList())); err != nil {
				return err
			}
			v, err := l.Get(i)
			if err != nil {
				return domain.E(domain.KindAutomerge, "crdtval.write", err)
			}
			if err := writeList(v.List(), t); err != nil {
				return err
			}
		case map[string]any:
			if err := wrapSet(l.Append(automerge.NewMap())); err != nil {
				return err
			}
			v, err := l.Get(i)
			if err != nil {
				return domain.E(domain.KindAutomerge, "crdtval.write", err)
			}
			if err := writeMap(v.Map(), t); err != nil {
				return err
			}
		default:
			return domain.Ef(domain.KindConversion, "crdtval.write", "unsupported value type %T", item)
		}
	}
	return nil
}

// readValue reconstructs the generic tree for any node kind. The switch is
// total so a new automerge node kind fails loudly instead of being skipped.
func readValue(v *automerge.Value) (any, error) {
	switch v.Kind() {
	case automerge.KindNull, automerge.KindVoid:
		return nil, nil
	case automerge.KindBool:
		return v.Bool(), nil
	case automerge.KindStr:
		return v.Str(), nil
	case automerge.KindText:
		s, err := v.Text().Get()
		if err != nil {
			return nil, domain.E(domain.KindAutomerge, "crdtval.read", err)
		}
		return s, nil
	case automerge.KindInt64:
		return json.Number(strconv.FormatInt(v.Int64(), 10)), nil
	case automerge.KindUint64:
		return json.Number(strconv.FormatUint(v.Uint64(), 10)), nil
	case automerge.KindFloat64:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			// Non-finite floats are not representable in the generic tree.
			return json.Number("0"), nil
		}
		return floatNumber(f), nil
	case automerge.KindTime:
		return v.Time().UTC(), nil
	case automerge.KindBytes:
		return v.Bytes(), nil
	case automerge.KindCounter:
		// Counters carry no retrievable accumulated value on this read path.
		return json.Number("0"), nil
	case automerge.KindMap:
		return readMap(v.Map())
	case automerge.KindList:
		return readList(v.List())
	default:
		return nil, domain.Ef(domain.KindConversion, "crdtval.read", "unsupported node kind %s", v.Kind())
	}
}

func readMap(m *automerge.Map) (map[string]any, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, domain.E(domain.KindAutomerge, "crdtval.read", err)
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		v, err := m.Get(key)
		if err != nil {
			return nil, domain.E(domain.KindAutomerge, "crdtval.read", err)
		}
		child, err := readValue(v)
		if err != nil {
			return nil, err
		}
		out[key] = child
	}
	return out, nil
}

func readList(l *automerge.List) ([]any, error) {
	n := l.Len()
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := l.Get(i)
		if err != nil {
			return nil, domain.E(domain.KindAutomerge, "crdtval.read", err)
		}
		child, err := readValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// encode round-trips value through JSON into a generic tree, decoding numbers
// as json.Number so integers stay integral.
func encode(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, domain.E(domain.KindSerialization, "crdtval.encode", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, domain.E(domain.KindSerialization, "crdtval.encode", err)
	}
	return tree, nil
}

func decodeInto(tree any, out any) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return domain.E(domain.KindSerialization, "crdtval.decode", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return domain.E(domain.KindSerialization, "crdtval.decode", err)
	}
	return nil
}

// numberValue writes an integer node when the number is exactly representable
// as int64, a float node otherwise.
func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return float64(0)
	}
	return f
}

func floatNumber(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// sortedKeys gives a deterministic write order so automerge op logs stay
// stable across runs.
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func wrapSet(err error) error {
	if err != nil {
		return domain.E(domain.KindAutomerge, "crdtval.write", err)
	}
	return nil
}
