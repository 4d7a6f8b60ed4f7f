package adaptivepath

// deepCopyPlan clones a plan so that in-place lock mutations never
// alias a previously persisted version — each UpdatePlan call mutates
// its own copy before handing it to the repository.
func deepCopyPlan(p Plan) Plan {
	out := p
	out.Hints = append([]string(nil), p.Hints...)
	out.Branches = make([]Branch, len(p.Branches))
	for i, b := range p.Branches {
		out.Branches[i] = deepCopyBranch(b)
	}
	return out
}

func deepCopyBranch(b Branch) Branch {
	out := b
	out.LockedFields = cloneSet(b.LockedFields)
	out.Phases = make([]Phase, len(b.Phases))
	for i, p := range b.Phases {
		out.Phases[i] = deepCopyPhase(p)
	}
	return out
}

func deepCopyPhase(p Phase) Phase {
	out := p
	out.LockedFields = cloneSet(p.LockedFields)
	out.Checkpoints = make([]Checkpoint, len(p.Checkpoints))
	for i, c := range p.Checkpoints {
		out.Checkpoints[i] = deepCopyCheckpoint(c)
	}
	return out
}

func deepCopyCheckpoint(c Checkpoint) Checkpoint {
	out := c
	out.LockedFields = cloneSet(c.LockedFields)
	return out
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
