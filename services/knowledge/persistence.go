package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
)

const (
	indexSuffix  = ".index"
	recordSuffix = ".json"
	blobVersion  = 1
)

// indexBlob is the vector artifact: deterministic CBOR, zstd-compressed
type indexBlob struct {
	Version   int         `cbor:"1,keyasint"`
	Dimension int         `cbor:"2,keyasint"`
	Count     int         `cbor:"3,keyasint"`
	Vectors   [][]float32 `cbor:"4,keyasint"`
}

// recordFile is the metadata artifact
type recordFile struct {
	Documents   map[string]*models.Document `json:"documents"`
	DocumentIDs []string                    `json:"document_ids"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// ArtifactPaths returns the vector blob and metadata record paths for base
func ArtifactPaths(base string) (index, record string) {
	return base + indexSuffix, base + recordSuffix
}

// Exists reports whether both artifacts for base are present
func Exists(base string) bool {
	indexPath, recordPath := ArtifactPaths(base)
	if _, err := os.Stat(indexPath); err != nil {
		return false
	}
	_, err := os.Stat(recordPath)
	return err == nil
}

// Save writes the vector blob and the metadata record for every live
// position. Removed positions are dropped, so a later Load sees a compacted
// index with the same relative ordering.
func (kb *KnowledgeBase) Save(base string) error {
	kb.mu.RLock()
	blob, record := kb.snapshot()
	kb.mu.RUnlock()

	raw, err := encMode.Marshal(blob)
	if err != nil {
		return services.WrapInternal("failed to encode vector index", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return services.WrapInternal("failed to create compressor", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	enc.Close()

	meta, err := json.Marshal(record)
	if err != nil {
		return services.WrapInternal("failed to encode document records", err)
	}

	indexPath, recordPath := ArtifactPaths(base)
	if err := writeFileAtomic(indexPath, compressed); err != nil {
		return services.WrapInternal("failed to write vector index", err)
	}
	if err := writeFileAtomic(recordPath, meta); err != nil {
		return services.WrapInternal("failed to write document records", err)
	}

	kb.logger.Info("knowledge base saved",
		zap.String("path", base),
		zap.Int("positions", blob.Count),
		zap.Int("documents", len(record.Documents)),
	)
	return nil
}

func (kb *KnowledgeBase) snapshot() (indexBlob, recordFile) {
	positions := kb.store.livePositions()
	blob := indexBlob{
		Version:   blobVersion,
		Dimension: kb.index.Dimension(),
		Count:     len(positions),
		Vectors:   make([][]float32, 0, len(positions)),
	}
	record := recordFile{
		Documents:   make(map[string]*models.Document, len(kb.store.docs)),
		DocumentIDs: make([]string, 0, len(positions)),
	}
	for _, pos := range positions {
		id := kb.store.ids[pos]
		blob.Vectors = append(blob.Vectors, kb.index.Vector(pos))
		record.DocumentIDs = append(record.DocumentIDs, id)
		record.Documents[id] = kb.store.docs[id]
	}
	return blob, record
}

// Load replaces the knowledge base contents with the artifacts at base.
// Inconsistent artifacts fail with CorruptKnowledgeBase and leave the
// current contents untouched.
func (kb *KnowledgeBase) Load(base string) error {
	indexPath, recordPath := ArtifactPaths(base)

	compressed, err := os.ReadFile(indexPath)
	if err != nil {
		return fmt.Errorf("failed to read vector index: %w", err)
	}
	meta, err := os.ReadFile(recordPath)
	if err != nil {
		return fmt.Errorf("failed to read document records: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return services.WrapInternal("failed to create decompressor", err)
	}
	raw, err := dec.DecodeAll(compressed, nil)
	dec.Close()
	if err != nil {
		return services.CorruptKnowledgeBase("vector index is not valid zstd", err)
	}

	var blob indexBlob
	if err := cbor.Unmarshal(raw, &blob); err != nil {
		return services.CorruptKnowledgeBase("vector index is not valid cbor", err)
	}
	var record recordFile
	decoder := json.NewDecoder(bytes.NewReader(meta))
	decoder.UseNumber()
	if err := decoder.Decode(&record); err != nil {
		return services.CorruptKnowledgeBase("document records are not valid json", err)
	}

	index, store, err := rebuild(kb.index.Dimension(), blob, record)
	if err != nil {
		return err
	}

	kb.mu.Lock()
	kb.index = index
	kb.store = store
	kb.mu.Unlock()

	kb.logger.Info("knowledge base loaded",
		zap.String("path", base),
		zap.Int("positions", index.Size()),
		zap.Int("documents", len(store.docs)),
	)
	return nil
}

func rebuild(dimension int, blob indexBlob, record recordFile) (*FlatIndex, *recordStore, error) {
	if blob.Version != blobVersion {
		return nil, nil, services.CorruptKnowledgeBase(fmt.Sprintf("unsupported index version %d", blob.Version), nil)
	}
	if blob.Dimension != dimension {
		return nil, nil, services.DimensionMismatch(dimension, blob.Dimension)
	}
	if blob.Count != len(blob.Vectors) {
		return nil, nil, services.CorruptKnowledgeBase(
			fmt.Sprintf("index header reports %d vectors but holds %d", blob.Count, len(blob.Vectors)), nil)
	}
	if len(record.DocumentIDs) != blob.Count {
		return nil, nil, services.CorruptKnowledgeBase(
			fmt.Sprintf("record lists %d document ids but index holds %d vectors", len(record.DocumentIDs), blob.Count), nil).
			WithDetail("document_ids", len(record.DocumentIDs)).
			WithDetail("vectors", blob.Count)
	}

	index := NewFlatIndex(dimension)
	store := newRecordStore()
	for i, id := range record.DocumentIDs {
		doc, ok := record.Documents[id]
		if !ok || doc == nil {
			return nil, nil, services.CorruptKnowledgeBase(fmt.Sprintf("document %q listed at position %d has no record", id, i), nil)
		}
		if doc.ID == "" {
			doc.ID = id
		}
		doc.Metadata = normalizeMetadata(doc.Metadata)
		if _, err := index.Add(blob.Vectors[i]); err != nil {
			return nil, nil, services.CorruptKnowledgeBase(fmt.Sprintf("vector at position %d", i), err)
		}
		store.append(doc)
	}
	return index, store, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
