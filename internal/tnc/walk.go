package tnc

// frame tracks an in-progress Znode and which child to visit next, the
// explicit-stack traversal spec.md §9 calls for in place of parent
// pointers and a current-index-in-parent field.
type frame struct {
	z     *Znode
	child int
}

// WalkIndex drives the pre-order traversal that is the spine of both
// consistency checking and rebuild-time TNC reconstruction: it invokes
// znodeCb once per internal Znode (on first visit, before descending into
// its children) and leafCb once per leaf branch, visiting leaves in key
// order left to right. Returning an error from either callback aborts the
// walk and propagates the error; a leafCb that wants to "drop" a branch
// does so by mutating the tree through the Tnc methods, not by its return
// value, matching spec.md's description of the engine calling the leaf
// callback in place while deciding to keep or drop the branch.
func WalkIndex(root *Znode, znodeCb func(*Znode) error, leafCb func(Branch) error) error {
	if root == nil {
		return nil
	}
	stack := []frame{{z: root, child: 0}}
	visited := map[*Znode]bool{}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if !visited[top.z] {
			if znodeCb != nil {
				if err := znodeCb(top.z); err != nil {
					return err
				}
			}
			visited[top.z] = true
		}

		if top.child >= len(top.z.Branches) {
			stack = stack[:len(stack)-1]
			continue
		}

		b := top.z.Branches[top.child]
		top.child++

		if b.Child != nil {
			stack = append(stack, frame{z: b.Child, child: 0})
			continue
		}
		if leafCb != nil {
			if err := leafCb(b); err != nil {
				return err
			}
		}
	}
	return nil
}
