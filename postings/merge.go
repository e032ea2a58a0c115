package postings

import (
	"github.com/pkg/errors"

	"github.com/andy-wagner/Trinity/index"
)

// MergeParticipant is one source posting list of a term being merged.
type MergeParticipant struct {
	Proxy   *AccessProxy
	TermCtx index.TermCtx
	// Masked marks documents to drop during the merge; nil keeps
	// everything.
	Masked index.MaskedDocumentsRegistry
}

// MergeTerm merges one term's posting lists from all participants into
// enc, which must be positioned between BeginTerm and EndTerm. When
// the same document id occurs in several participants, the first
// participant wins; its masked registry decides whether the document
// is carried over. Hits and payloads are preserved.
func MergeTerm(participants []MergeParticipant, enc *Encoder) error {
	type candidate struct {
		dec    *Decoder
		masked index.MaskedDocumentsRegistry
	}

	candidates := make([]candidate, 0, len(participants))
	for _, p := range participants {
		dec := p.Proxy.NewDecoder(p.TermCtx)
		dec.Begin()
		if err := dec.Err(); err != nil {
			return errors.Wrap(err, "merge participant failed")
		}
		if !dec.exhausted {
			candidates = append(candidates, candidate{dec: dec, masked: p.Masked})
		}
	}

	toAdvance := make([]int, 0, len(candidates))
	var th index.TermHits
	var payload [MaxPayloadSize]byte

	for len(candidates) > 0 {
		docID := candidates[0].dec.Document().ID
		toAdvance = append(toAdvance[:0], 0)
		for i := 1; i < len(candidates); i++ {
			switch id := candidates[i].dec.Document().ID; {
			case id < docID:
				docID = id
				toAdvance = append(toAdvance[:0], i)
			case id == docID:
				toAdvance = append(toAdvance, i)
			}
		}

		// The first candidate at this id wins; later participants
		// hold stale duplicates.
		c := candidates[toAdvance[0]]
		if c.masked == nil || !c.masked.Test(docID) {
			if err := enc.BeginDocument(docID); err != nil {
				return err
			}
			c.dec.MaterializeHits(0, nil, &th)
			if err := c.dec.Err(); err != nil {
				return errors.Wrap(err, "merge participant failed")
			}
			for _, h := range th.Hits {
				for j := uint8(0); j < h.PayloadLen; j++ {
					payload[j] = byte(h.Payload >> (8 * j))
				}
				if err := enc.NewHit(uint32(h.Pos), payload[:h.PayloadLen]); err != nil {
					return err
				}
			}
			enc.EndDocument()
		}

		for i := len(toAdvance) - 1; i >= 0; i-- {
			idx := toAdvance[i]
			dec := candidates[idx].dec
			if !dec.Next() {
				if err := dec.Err(); err != nil {
					return errors.Wrap(err, "merge participant failed")
				}
				candidates = append(candidates[:idx], candidates[idx+1:]...)
			}
		}
	}
	return nil
}
