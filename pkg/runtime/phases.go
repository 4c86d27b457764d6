package runtime

// Hook is a subsystem termination routine. It returns the number of
// pending items: >0 means it did work that may re-enable an
// earlier-ordered subsystem and another pass is needed; 0 means the
// subsystem is quiescent. Hooks signal, they do not fail: a hook must
// resolve or report its own errors internally and return 0 once it has
// done everything it safely can.
type Hook func() int

// Phase is a named termination hook.
type Phase struct {
	Name string
	Hook Hook
}

// Group is an ordered set of phases torn down together. The driver
// attempts a group only while the current pass is still settled
// (pending == 0); within a group every phase runs and the pending counts
// are summed, so phases inside one group may not depend on each other.
type Group struct {
	Name   string
	Phases []Phase
}

// Table is the declarative termination order: groups are attempted in
// slice order, each gated on all earlier groups being quiescent. The
// fixpoint loop in Terminate rescans the table until no phase reports
// pending work or the attempt bound is hit.
type Table struct {
	Groups []Group
}

// Canonical phase names. The default table wires real hooks for the
// subsystems this module owns and no-op hooks for the slots filled in by
// the wider library.
const (
	PhaseEventSets    = "eventsets"
	PhaseLinks        = "links"
	PhaseAttrTop      = "attr-top"
	PhaseDatasetTop   = "dataset-top"
	PhaseGroupTop     = "group-top"
	PhaseMapTop       = "map-top"
	PhaseDataspaceTop = "dataspace-top"
	PhaseDatatypeTop  = "datatype-top"
	PhaseFile         = "file"
	PhaseProplist     = "proplist"
	PhaseAttr         = "attr"
	PhaseDataset      = "dataset"
	PhaseGroups       = "group"
	PhaseMap          = "map"
	PhaseDataspace    = "dataspace"
	PhaseDatatype     = "datatype"
	PhaseCache        = "cache"
	PhaseFilter       = "filter"
	PhaseVFD          = "vfd"
	PhaseConnector    = "connector"
	PhasePlugin       = "plugin"
	PhaseErrors       = "errors"
	PhaseIDs          = "ids"
	PhaseAuxList      = "auxlist"
	PhaseFreeList     = "freelist"
	PhaseCtxStack     = "ctxstack"
)

func noop() int { return 0 }

// defaultTable builds the canonical termination order for a runtime.
//
// Higher-level interfaces shut down before the lower-level ones they rely
// on. The "-top" phases close user-visible handles without dismantling
// the interface itself, so objects still referenced from the cache and
// open containers serialize correctly before the file phase runs. One
// hook's work can unblock an earlier group, which is why the whole table
// sits inside the fixpoint loop rather than running once.
func (rt *Runtime) defaultTable() Table {
	return Table{Groups: []Group{
		// Asynchronous operations settle before anything else is touched.
		{Name: "async", Phases: []Phase{
			{Name: PhaseEventSets, Hook: noop},
		}},
		{Name: "top", Phases: []Phase{
			{Name: PhaseLinks, Hook: noop},
			{Name: PhaseAttrTop, Hook: noop},
			{Name: PhaseDatasetTop, Hook: noop},
			{Name: PhaseGroupTop, Hook: noop},
			{Name: PhaseMapTop, Hook: noop},
			{Name: PhaseDataspaceTop, Hook: noop},
			{Name: PhaseDatatypeTop, Hook: noop},
		}},
		{Name: "file", Phases: []Phase{
			{Name: PhaseFile, Hook: noop},
		}},
		{Name: "proplist", Phases: []Phase{
			{Name: PhaseProplist, Hook: noop},
		}},
		{Name: "bottom", Phases: []Phase{
			{Name: PhaseAttr, Hook: noop},
			{Name: PhaseDataset, Hook: noop},
			{Name: PhaseGroups, Hook: noop},
			{Name: PhaseMap, Hook: noop},
			{Name: PhaseDataspace, Hook: noop},
			{Name: PhaseDatatype, Hook: noop},
		}},
		// Low-level head: cache first, then the pluggable interfaces.
		{Name: "lowlevel", Phases: []Phase{
			{Name: PhaseCache, Hook: noop},
			{Name: PhaseFilter, Hook: noop},
			{Name: PhaseVFD, Hook: noop},
			{Name: PhaseConnector, Hook: noop},
		}},
		// Each remaining subsystem waits for everything above it: the
		// plugin framework outlives the pluggable interfaces, error
		// reporting outlives its users, IDs outlive every interface that
		// hands them out, and the context stack goes last of all.
		{Name: "plugin", Phases: []Phase{
			{Name: PhasePlugin, Hook: noop},
		}},
		{Name: "errors", Phases: []Phase{
			{Name: PhaseErrors, Hook: noop},
		}},
		{Name: "ids", Phases: []Phase{
			{Name: PhaseIDs, Hook: rt.ids.TerminateAll},
		}},
		{Name: "auxlist", Phases: []Phase{
			{Name: PhaseAuxList, Hook: noop},
		}},
		{Name: "freelist", Phases: []Phase{
			{Name: PhaseFreeList, Hook: rt.pools.Terminate},
		}},
		{Name: "ctxstack", Phases: []Phase{
			{Name: PhaseCtxStack, Hook: rt.ctx.terminate},
		}},
	}}
}

// SetHook replaces the hook of the named phase. It is how the wider
// library (and tests) bind real subsystems into the table; unknown names
// are reported so a misspelled binding fails loudly.
func (t *Table) SetHook(phase string, hook Hook) bool {
	for gi := range t.Groups {
		for pi := range t.Groups[gi].Phases {
			if t.Groups[gi].Phases[pi].Name == phase {
				t.Groups[gi].Phases[pi].Hook = hook
				return true
			}
		}
	}
	return false
}

// PhaseNames returns every phase name in termination order, grouped.
func (t *Table) PhaseNames() [][]string {
	out := make([][]string, 0, len(t.Groups))
	for _, g := range t.Groups {
		names := make([]string, 0, len(g.Phases))
		for _, p := range g.Phases {
			names = append(names, p.Name)
		}
		out = append(out, names)
	}
	return out
}
