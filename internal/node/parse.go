package node

import "fmt"

// Parse decodes a single node starting at buf[0], which must contain at
// least the node's declared length (ParseHeader enforces that bound
// against len(buf)). lnum/offs are carried through only for error context;
// the codec itself is location-agnostic.
func Parse(buf []byte, lnum, offs int) (Node, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("leb %d offset %d: %w", lnum, offs, err)
	}
	body := buf[HeaderLen:h.Len]

	var n Node
	switch h.NodeType {
	case TypeInode:
		n, err = decodeInode(h, body)
	case TypeDent:
		n, err = decodeDirEntry(h, body, false)
	case TypeXent:
		n, err = decodeDirEntry(h, body, true)
	case TypeData:
		n, err = decodeData(h, body)
	case TypeTrun:
		n, err = decodeTrun(h, body)
	case TypeIdx:
		n, err = decodeIdx(h, body)
	case TypeSB:
		if h.Len != sbLen {
			return nil, fmt.Errorf("leb %d offset %d: %w: superblock must be exactly %d bytes, got %d", lnum, offs, ErrBadNodeLength, sbLen, h.Len)
		}
		n, err = decodeSuperblock(h, body)
	case TypeMaster:
		if h.Len != masterLen {
			return nil, fmt.Errorf("leb %d offset %d: %w: master must be exactly %d bytes, got %d", lnum, offs, ErrBadNodeLength, masterLen, h.Len)
		}
		n, err = decodeMaster(h, body)
	case TypeRef:
		if h.Len != refLen {
			return nil, fmt.Errorf("leb %d offset %d: %w: reference must be exactly %d bytes, got %d", lnum, offs, ErrBadNodeLength, refLen, h.Len)
		}
		n, err = decodeReference(h, body)
	case TypeCommitStart:
		n, err = decodeCommitStart(h, body)
	case TypeOrphan:
		n, err = decodeOrphan(h, body)
	case TypeAuth:
		n, err = decodeAuth(h, body)
	case TypePad:
		n = &Padding{Header: h}
	default:
		return nil, fmt.Errorf("leb %d offset %d: %w: %v", lnum, offs, ErrUnknownType, h.NodeType)
	}
	if err != nil {
		return nil, fmt.Errorf("leb %d offset %d: %w", lnum, offs, err)
	}
	return n, nil
}

// ParseAndValidate is Parse followed by the node's own Validate, the
// combination internal/check's callers actually want.
func ParseAndValidate(buf []byte, lnum, offs int) (Node, error) {
	n, err := Parse(buf, lnum, offs)
	if err != nil {
		return nil, err
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("leb %d offset %d: %w", lnum, offs, err)
	}
	return n, nil
}

// IsIndex reports whether a node type is an index node, used by the
// segregation invariant (spec.md §3: a main LEB holds only index nodes or
// only non-index nodes, never both).
func IsIndex(t Type) bool { return t == TypeIdx }
