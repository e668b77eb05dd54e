package report

// Index looks blocks up by id. The position map is the fast path; Locate
// falls back to scanning when a stored position no longer matches.
type Index struct {
	blocks []Block
	pos    map[string]int
}

// NewIndex builds an index over blocks. The slice is copied.
func NewIndex(blocks []Block) *Index {
	idx := &Index{
		blocks: append([]Block(nil), blocks...),
		pos:    make(map[string]int, len(blocks)),
	}
	for i, b := range idx.blocks {
		idx.pos[b.ID] = i
	}
	return idx
}

// Len returns the number of blocks.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.blocks)
}

// Blocks returns a copy of the indexed blocks in document order.
func (x *Index) Blocks() []Block {
	if x == nil {
		return nil
	}
	return append([]Block(nil), x.blocks...)
}

// Locate returns the position of the block with id.
func (x *Index) Locate(id string) (int, bool) {
	if x == nil {
		return 0, false
	}
	if i, ok := x.pos[id]; ok && i < len(x.blocks) && x.blocks[i].ID == id {
		return i, true
	}
	for i, b := range x.blocks {
		if b.ID == id {
			x.pos[id] = i
			return i, true
		}
	}
	return 0, false
}

// Get returns the block with id.
func (x *Index) Get(id string) (Block, bool) {
	i, ok := x.Locate(id)
	if !ok {
		return Block{}, false
	}
	return x.blocks[i], true
}
