// Package store provides a thin bbolt wrapper for agrobot's local data store.
//
// The store is a CRUD collaborator keyed by opaque string identifiers. Data
// is written by the data loader, the account-linking flow, the preference
// flow and the report scheduler; everything else only reads.
//
// Buckets:
//
//	farmers    : farmer records keyed by farmer ID
//	parcels    : parcel records keyed by parcel ID
//	samples    : one envelope of metric samples per parcel ID
//	preferences: report preferences keyed by recipient phone
//	outbox     : messages recorded by the mock transport
//	_meta      : internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/agrobot/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket name constants.
var (
	bucketFarmers     = []byte("farmers")
	bucketParcels     = []byte("parcels")
	bucketSamples     = []byte("samples")
	bucketPreferences = []byte("preferences")
	bucketOutbox      = []byte("outbox")
	bucketInternal    = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"farmers", "parcels", "samples", "preferences", "outbox"}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFarmers, bucketParcels, bucketSamples, bucketPreferences, bucketOutbox, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Generic helpers ──────────────────────────────────────────────────────────

func (s *Store) put(bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", bucket, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// get decodes the value at key into out. found is false when key is absent.
func (s *Store) get(bucket []byte, key string, out interface{}) (found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, out)
	})
	return found, err
}

// each decodes every value in bucket with decode, in key order.
func (s *Store) each(bucket []byte, decode func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			return decode(v)
		})
	})
}

// ─── Farmers ──────────────────────────────────────────────────────────────────

// PutFarmer inserts or replaces a farmer.
func (s *Store) PutFarmer(f model.Farmer) error {
	if f.ID == "" {
		return fmt.Errorf("farmer has no id")
	}
	return s.put(bucketFarmers, f.ID, f)
}

// GetFarmer retrieves a farmer by ID.
// Returns (farmer, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetFarmer(id string) (model.Farmer, bool, error) {
	var f model.Farmer
	found, err := s.get(bucketFarmers, id, &f)
	return f, found, err
}

// ListFarmers returns all farmers sorted by ID.
func (s *Store) ListFarmers() ([]model.Farmer, error) {
	var out []model.Farmer
	err := s.each(bucketFarmers, func(v []byte) error {
		var f model.Farmer
		if err := json.Unmarshal(v, &f); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// FarmerByUsername finds a farmer by exact username.
func (s *Store) FarmerByUsername(username string) (model.Farmer, bool, error) {
	return s.findFarmer(func(f model.Farmer) bool { return f.Username == username })
}

// FarmerByPhone finds the farmer linked to phone.
func (s *Store) FarmerByPhone(phone string) (model.Farmer, bool, error) {
	if phone == "" {
		return model.Farmer{}, false, nil
	}
	return s.findFarmer(func(f model.Farmer) bool { return f.Phone == phone })
}

func (s *Store) findFarmer(match func(model.Farmer) bool) (model.Farmer, bool, error) {
	farmers, err := s.ListFarmers()
	if err != nil {
		return model.Farmer{}, false, err
	}
	for _, f := range farmers {
		if match(f) {
			return f, true, nil
		}
	}
	return model.Farmer{}, false, nil
}

// ─── Parcels ──────────────────────────────────────────────────────────────────

// PutParcel inserts or replaces a parcel.
func (s *Store) PutParcel(p model.Parcel) error {
	if p.ID == "" {
		return fmt.Errorf("parcel has no id")
	}
	return s.put(bucketParcels, p.ID, p)
}

// GetParcel retrieves a parcel by ID.
func (s *Store) GetParcel(id string) (model.Parcel, bool, error) {
	var p model.Parcel
	found, err := s.get(bucketParcels, id, &p)
	return p, found, err
}

// ListParcels returns all parcels sorted by ID.
func (s *Store) ListParcels() ([]model.Parcel, error) {
	var out []model.Parcel
	err := s.each(bucketParcels, func(v []byte) error {
		var p model.Parcel
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ParcelsByFarmer returns the parcels owned by farmerID, sorted by ID.
func (s *Store) ParcelsByFarmer(farmerID string) ([]model.Parcel, error) {
	all, err := s.ListParcels()
	if err != nil {
		return nil, err
	}
	out := []model.Parcel{}
	for _, p := range all {
		if p.FarmerID == farmerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ─── Samples ──────────────────────────────────────────────────────────────────

// storedSample is the on-disk representation of one metric sample. Dates
// are stored as YYYY-MM-DD; absent metrics are JSON null.
type storedSample struct {
	Date       string   `json:"date"`
	NDVI       *float64 `json:"ndvi"`
	NDMI       *float64 `json:"ndmi"`
	NDWI       *float64 `json:"ndwi"`
	SOC        *float64 `json:"soc"`
	Nitrogen   *float64 `json:"nitrogen"`
	Phosphorus *float64 `json:"phosphorus"`
	Potassium  *float64 `json:"potassium"`
	PH         *float64 `json:"ph"`
}

// storedSamples is the on-disk envelope for one parcel's series.
type storedSamples struct {
	ParcelID  string         `json:"parcel_id"`
	UpdatedAt time.Time      `json:"updated_at"`
	Samples   []storedSample `json:"samples"`
}

func sampleToStored(m model.MetricSample) storedSample {
	return storedSample{
		Date:       m.Date.Format("2006-01-02"),
		NDVI:       m.NDVI,
		NDMI:       m.NDMI,
		NDWI:       m.NDWI,
		SOC:        m.SOC,
		Nitrogen:   m.Nitrogen,
		Phosphorus: m.Phosphorus,
		Potassium:  m.Potassium,
		PH:         m.PH,
	}
}

func storedToSample(r storedSample) model.MetricSample {
	t, _ := time.Parse("2006-01-02", r.Date)
	return model.MetricSample{
		Date:       t,
		NDVI:       r.NDVI,
		NDMI:       r.NDMI,
		NDWI:       r.NDWI,
		SOC:        r.SOC,
		Nitrogen:   r.Nitrogen,
		Phosphorus: r.Phosphorus,
		Potassium:  r.Potassium,
		PH:         r.PH,
	}
}

// PutSamples replaces the series stored for parcelID.
func (s *Store) PutSamples(parcelID string, samples []model.MetricSample) error {
	rows := make([]storedSample, len(samples))
	for i, m := range samples {
		rows[i] = sampleToStored(m)
	}
	return s.put(bucketSamples, parcelID, storedSamples{
		ParcelID:  parcelID,
		UpdatedAt: time.Now().UTC(),
		Samples:   rows,
	})
}

// AppendSamples adds samples to the series stored for parcelID. Existing
// samples are kept; the series is re-sorted by date, stable on ties.
func (s *Store) AppendSamples(parcelID string, samples []model.MetricSample) error {
	existing, _, err := s.GetSamples(parcelID)
	if err != nil {
		return err
	}
	merged := append(existing, samples...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	return s.PutSamples(parcelID, merged)
}

// GetSamples retrieves the series for parcelID in stored order.
// found is false when the parcel has never had samples.
func (s *Store) GetSamples(parcelID string) ([]model.MetricSample, bool, error) {
	var env storedSamples
	found, err := s.get(bucketSamples, parcelID, &env)
	if err != nil || !found {
		return nil, found, err
	}
	out := make([]model.MetricSample, len(env.Samples))
	for i, r := range env.Samples {
		out[i] = storedToSample(r)
	}
	return out, true, nil
}

// ─── Preferences ──────────────────────────────────────────────────────────────

// PutPreference inserts or replaces the preference for p.Recipient. A
// missing ID is assigned.
func (s *Store) PutPreference(p model.ReportPreference) (model.ReportPreference, error) {
	if p.Recipient == "" {
		return p, fmt.Errorf("preference has no recipient")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return p, s.put(bucketPreferences, p.Recipient, p)
}

// GetPreference retrieves the preference for recipient.
func (s *Store) GetPreference(recipient string) (model.ReportPreference, bool, error) {
	var p model.ReportPreference
	found, err := s.get(bucketPreferences, recipient, &p)
	return p, found, err
}

// ListPreferences returns every stored preference sorted by recipient.
func (s *Store) ListPreferences() ([]model.ReportPreference, error) {
	var out []model.ReportPreference
	err := s.each(bucketPreferences, func(v []byte) error {
		var p model.ReportPreference
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ─── Outbox ───────────────────────────────────────────────────────────────────

// OutboxEntry is a message recorded instead of being delivered.
type OutboxEntry struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendOutbox records a message. Keys sort by creation time.
func (s *Store) AppendOutbox(to, body string) (OutboxEntry, error) {
	e := OutboxEntry{
		ID:        uuid.NewString(),
		To:        to,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	key := e.CreatedAt.Format("20060102T150405.000000000Z") + "|" + e.ID
	return e, s.put(bucketOutbox, key, e)
}

// ListOutbox returns recorded messages oldest first.
func (s *Store) ListOutbox() ([]OutboxEntry, error) {
	var out []OutboxEntry
	err := s.each(bucketOutbox, func(v []byte) error {
		var e OutboxEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets, in
// AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			if err := b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	if !isUserBucket(name) {
		return fmt.Errorf("unknown bucket %q", name)
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

func isUserBucket(name string) bool {
	for _, b := range AllBuckets {
		if b == name {
			return true
		}
	}
	return false
}
