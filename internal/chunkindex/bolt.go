package chunkindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"paperlib/internal/lifecycle"
)

var bucketChunks = []byte("chunks")

// boltRecord is the on-disk layout. Tag sets use the comma-joined form.
type boltRecord struct {
	Seq                uint64    `json:"seq"`
	ID                 string    `json:"id"`
	DocumentID         string    `json:"document_id"`
	Page               int       `json:"page"`
	Index              int       `json:"index"`
	Section            string    `json:"section"`
	Text               string    `json:"text"`
	Vector             []float32 `json:"vector"`
	Status             string    `json:"status"`
	MetadataIncomplete bool      `json:"metadata_incomplete"`
	CrossrefVerified   bool      `json:"crossref_verified"`
	Chemistries        string    `json:"chemistries"`
	Topics             string    `json:"topics"`
}

func toRecord(c Chunk, seq uint64) boltRecord {
	return boltRecord{
		Seq:                seq,
		ID:                 c.ID,
		DocumentID:         c.DocumentID,
		Page:               c.Page,
		Index:              c.Index,
		Section:            c.Section,
		Text:               c.Text,
		Vector:             c.Vector,
		Status:             string(c.Filter.Status),
		MetadataIncomplete: c.Filter.MetadataIncomplete,
		CrossrefVerified:   c.Filter.CrossrefVerified,
		Chemistries:        JoinTags(c.Filter.Chemistries),
		Topics:             JoinTags(c.Filter.Topics),
	}
}

func (r boltRecord) chunk() Chunk {
	return Chunk{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Page:       r.Page,
		Index:      r.Index,
		Section:    r.Section,
		Text:       r.Text,
		Vector:     r.Vector,
		Filter: FilterFields{
			Status:             lifecycle.Status(r.Status),
			MetadataIncomplete: r.MetadataIncomplete,
			CrossrefVerified:   r.CrossrefVerified,
			Chemistries:        SplitTags(r.Chemistries),
			Topics:             SplitTags(r.Topics),
		},
	}
}

// Bolt is a single-file Index for local runs without Weaviate.
type Bolt struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open chunk index: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Upsert(_ context.Context, c Chunk) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketChunks)
		var seq uint64
		if prev := bk.Get([]byte(c.ID)); prev != nil {
			var r boltRecord
			if err := json.Unmarshal(prev, &r); err != nil {
				return err
			}
			seq = r.Seq
		} else {
			next, err := bk.NextSequence()
			if err != nil {
				return err
			}
			seq = next
		}
		data, err := json.Marshal(toRecord(c, seq))
		if err != nil {
			return err
		}
		return bk.Put([]byte(c.ID), data)
	})
}

func (b *Bolt) records() ([]boltRecord, error) {
	var recs []boltRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(_, v []byte) error {
			var r boltRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			recs = append(recs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	return recs, nil
}

func (b *Bolt) GetAll(_ context.Context) ([]Chunk, error) {
	recs, err := b.records()
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, len(recs))
	for i, r := range recs {
		out[i] = r.chunk()
	}
	return out, nil
}

func (b *Bolt) UpdateMetadata(_ context.Context, ids []string, f FilterFields) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketChunks)
		for _, id := range ids {
			data := bk.Get([]byte(id))
			if data == nil {
				continue
			}
			var r boltRecord
			if err := json.Unmarshal(data, &r); err != nil {
				return err
			}
			r.Status = string(f.Status)
			r.MetadataIncomplete = f.MetadataIncomplete
			r.CrossrefVerified = f.CrossrefVerified
			r.Chemistries = JoinTags(f.Chemistries)
			r.Topics = JoinTags(f.Topics)
			out, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := bk.Put([]byte(id), out); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Nearest(ctx context.Context, vec []float32, n int) ([]Result, error) {
	all, err := b.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return rank(all, vec, n), nil
}

func (b *Bolt) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketChunks)
		var keys [][]byte
		err := bk.ForEach(func(k, v []byte) error {
			var r boltRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.DocumentID == documentID {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	return removed, err
}

func (b *Bolt) Count(_ context.Context) (int, error) {
	n := 0
	err := b.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketChunks).Stats().KeyN
		return nil
	})
	return n, err
}
