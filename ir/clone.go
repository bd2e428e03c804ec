package ir

// Clone returns a deep copy of the Document. Transactional operations
// (Repair, multi-step Transform pipelines) clone before mutating and only
// replace the caller's Document on success, so a failure midway always
// leaves the prior state intact.
//
// Resource bytes are not copied: resources are treated as immutable once
// loaded, so clones structurally share the underlying []byte slices and
// only the map and *Resource headers are duplicated. A transform that needs
// to change resource bytes must allocate a new []byte and store it under a
// (possibly new) id rather than mutate a shared slice in place.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Metadata:     d.Metadata.clone(),
		FormatOrigin: d.FormatOrigin,
	}
	if d.TOC != nil {
		out.TOC = make([]TocEntry, len(d.TOC))
		for i := range d.TOC {
			out.TOC[i] = d.TOC[i].clone()
		}
	}
	if d.Chapters != nil {
		out.Chapters = make([]Chapter, len(d.Chapters))
		for i := range d.Chapters {
			out.Chapters[i] = d.Chapters[i].clone()
		}
	}
	if d.Res != nil {
		out.Res = make(ResourceMap, len(d.Res))
		for id, res := range d.Res {
			cp := *res
			out.Res[id] = &cp
		}
	}
	return out
}

func (m Metadata) clone() Metadata {
	out := m
	out.Authors = append([]string(nil), m.Authors...)
	out.Subjects = append([]string(nil), m.Subjects...)
	if m.Series != nil {
		s := *m.Series
		out.Series = &s
	}
	if m.Overflow != nil {
		out.Overflow = make(map[string]string, len(m.Overflow))
		for k, v := range m.Overflow {
			out.Overflow[k] = v
		}
	}
	return out
}

func (t TocEntry) clone() TocEntry {
	out := t
	if t.Children != nil {
		out.Children = make([]TocEntry, len(t.Children))
		for i := range t.Children {
			out.Children[i] = t.Children[i].clone()
		}
	}
	return out
}

func (c Chapter) clone() Chapter {
	out := c
	if c.Content != nil {
		out.Content = make([]ContentNode, len(c.Content))
		for i := range c.Content {
			out.Content[i] = c.Content[i].clone()
		}
	}
	return out
}

func (n ContentNode) clone() ContentNode {
	out := ContentNode{Kind: n.Kind}
	switch n.Kind {
	case NodeParagraph:
		if n.Paragraph != nil {
			p := &ParagraphNode{Inlines: cloneInlines(n.Paragraph.Inlines)}
			out.Paragraph = p
		}
	case NodeHeading:
		if n.Heading != nil {
			out.Heading = &HeadingNode{Level: n.Heading.Level, Inlines: cloneInlines(n.Heading.Inlines)}
		}
	case NodeList:
		if n.List != nil {
			items := make([][]ContentNode, len(n.List.Items))
			for i, item := range n.List.Items {
				items[i] = cloneNodes(item)
			}
			out.List = &ListNode{Ordered: n.List.Ordered, Items: items}
		}
	case NodeTable:
		if n.Table != nil {
			out.Table = &TableNode{
				Header: cloneInlineRows(n.Table.Header),
				Rows:   cloneInlineGrid(n.Table.Rows),
			}
		}
	case NodeBlockQuote:
		if n.BlockQuote != nil {
			out.BlockQuote = &BlockQuoteNode{Children: cloneNodes(n.BlockQuote.Children)}
		}
	case NodeCodeBlock:
		if n.CodeBlock != nil {
			cb := *n.CodeBlock
			out.CodeBlock = &cb
		}
	case NodeImage:
		if n.Image != nil {
			im := *n.Image
			out.Image = &im
		}
	case NodeHorizontalRule:
		// no payload
	case NodeRawPassthrough:
		if n.RawPassthru != nil {
			rp := *n.RawPassthru
			out.RawPassthru = &rp
		}
	}
	return out
}

func cloneNodes(in []ContentNode) []ContentNode {
	if in == nil {
		return nil
	}
	out := make([]ContentNode, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}

func cloneInlines(in []InlineNode) []InlineNode {
	if in == nil {
		return nil
	}
	out := make([]InlineNode, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}

func cloneInlineRows(rows [][]InlineNode) [][]InlineNode {
	if rows == nil {
		return nil
	}
	out := make([][]InlineNode, len(rows))
	for i := range rows {
		out[i] = cloneInlines(rows[i])
	}
	return out
}

func cloneInlineGrid(grid [][][]InlineNode) [][][]InlineNode {
	if grid == nil {
		return nil
	}
	out := make([][][]InlineNode, len(grid))
	for i := range grid {
		out[i] = cloneInlineRows(grid[i])
	}
	return out
}

func (n InlineNode) clone() InlineNode {
	out := n
	out.Children = cloneInlines(n.Children)
	if n.Link != nil {
		l := *n.Link
		out.Link = &l
	}
	if n.Ruby != nil {
		r := *n.Ruby
		out.Ruby = &r
	}
	return out
}
