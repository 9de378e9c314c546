package check

// Run drives the consistency engine's fixed pass sequence (spec.md
// §4.5): TNC sweep, file validation, reachability, recomputed
// attributes, space check, and index size check, in that order — each
// pass's output is the next pass's input, so the sequence is not
// reorderable.
func (e *Engine) Run() error {
	if err := e.Sweep(); err != nil {
		return err
	}
	if err := e.ValidateFiles(); err != nil {
		return err
	}
	if err := e.Reachable(); err != nil {
		return err
	}
	if err := e.RecomputeAttributes(); err != nil {
		return err
	}
	if err := e.SpaceCheck(); err != nil {
		return err
	}
	if err := e.IndexSizeCheck(); err != nil {
		return err
	}
	return nil
}
