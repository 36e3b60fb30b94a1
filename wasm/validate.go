package wasm

import "fmt"

// Validate performs structural validation: every index the module references
// must be in bounds, and section counts must be mutually consistent. It does
// not type-check function bodies; that is the code generator's concern.
func (m *Module) Validate() error {
	numTypes := uint32(len(m.Types))

	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %d: type index %d out of range (%d types)", i, imp.Desc.TypeIdx, numTypes)
		}
	}

	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d: type index %d out of range (%d types)", i, typeIdx, numTypes)
		}
	}

	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("%d code entries for %d declared functions", len(m.Code), len(m.Funcs))
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return fmt.Errorf("data count section declares %d segments, found %d", *m.DataCount, len(m.Data))
	}

	numFuncs := m.NumImportedFuncs() + uint32(len(m.Funcs))
	numTables := m.numImported(KindTable) + uint32(len(m.Tables))
	numMemories := m.numImported(KindMemory) + uint32(len(m.Memories))
	numGlobals := m.numImported(KindGlobal) + uint32(len(m.Globals))

	seen := make(map[string]struct{}, len(m.Exports))
	for i, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("export %d: duplicate name %q", i, exp.Name)
		}
		seen[exp.Name] = struct{}{}

		var limit uint32
		switch exp.Kind {
		case KindFunc:
			limit = numFuncs
		case KindTable:
			limit = numTables
		case KindMemory:
			limit = numMemories
		case KindGlobal:
			limit = numGlobals
		default:
			return fmt.Errorf("export %d: unknown kind 0x%02x", i, exp.Kind)
		}
		if exp.Index >= limit {
			return fmt.Errorf("export %q: index %d out of range (%d)", exp.Name, exp.Index, limit)
		}
	}

	if m.Start != nil && *m.Start >= numFuncs {
		return fmt.Errorf("start function index %d out of range (%d functions)", *m.Start, numFuncs)
	}

	for i, elem := range m.Elements {
		if elem.TableIndex >= numTables {
			return fmt.Errorf("element %d: table index %d out of range (%d tables)", i, elem.TableIndex, numTables)
		}
		for _, f := range elem.Funcs {
			if f >= numFuncs {
				return fmt.Errorf("element %d: function index %d out of range (%d functions)", i, f, numFuncs)
			}
		}
	}

	for i, seg := range m.Data {
		if !seg.Passive && seg.MemIndex >= numMemories {
			return fmt.Errorf("data %d: memory index %d out of range (%d memories)", i, seg.MemIndex, numMemories)
		}
	}

	for i, l := range m.Memories {
		if l.Limits.HasMax && l.Limits.Max < l.Limits.Min {
			return fmt.Errorf("memory %d: max %d below min %d", i, l.Limits.Max, l.Limits.Min)
		}
	}
	for i, tt := range m.Tables {
		if tt.Limits.HasMax && tt.Limits.Max < tt.Limits.Min {
			return fmt.Errorf("table %d: max %d below min %d", i, tt.Limits.Max, tt.Limits.Min)
		}
	}

	return nil
}

func (m *Module) numImported(kind byte) uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}
