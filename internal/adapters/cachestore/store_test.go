package cachestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/relaywatch/relaywatch/internal/domain/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache", "snapshots.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundtrip(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := openTestStore(t)
		ctx := context.Background()
		fetched := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		Convey("When no entry exists", func() {
			_, ok, err := store.Get(ctx, model.SourceDetails)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("When an entry is stored", func() {
			So(store.Put(ctx, model.SourceDetails, []byte(`{"relays":[]}`), fetched), ShouldBeNil)

			entry, ok, err := store.Get(ctx, model.SourceDetails)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(entry.Payload, ShouldResemble, []byte(`{"relays":[]}`))
			So(entry.FetchedAt.Equal(fetched), ShouldBeTrue)

			Convey("And replaced by a later put", func() {
				later := fetched.Add(time.Hour)
				So(store.Put(ctx, model.SourceDetails, []byte(`{}`), later), ShouldBeNil)

				entry, ok, err := store.Get(ctx, model.SourceDetails)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(entry.Payload, ShouldResemble, []byte(`{}`))
				So(entry.FetchedAt.Equal(later), ShouldBeTrue)
			})
		})

		Convey("When sources differ their entries do not collide", func() {
			So(store.Put(ctx, model.SourceDetails, []byte("d"), fetched), ShouldBeNil)
			So(store.Put(ctx, model.SourceUptime, []byte("u"), fetched), ShouldBeNil)

			entry, ok, err := store.Get(ctx, model.SourceUptime)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(entry.Payload, ShouldResemble, []byte("u"))
		})
	})
}

func TestStoreTouch(t *testing.T) {
	Convey("Given a store with one entry", t, func() {
		store := openTestStore(t)
		ctx := context.Background()
		fetched := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		So(store.Put(ctx, model.SourceDetails, []byte("payload"), fetched), ShouldBeNil)

		Convey("When the entry is touched the timestamp renews but the payload stays", func() {
			renewed := fetched.Add(30 * time.Minute)
			So(store.Touch(ctx, model.SourceDetails, renewed), ShouldBeNil)

			entry, ok, err := store.Get(ctx, model.SourceDetails)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(entry.Payload, ShouldResemble, []byte("payload"))
			So(entry.FetchedAt.Equal(renewed), ShouldBeTrue)
		})

		Convey("When a missing entry is touched", func() {
			err := store.Touch(ctx, model.SourceBandwidth, fetched)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestEntryFresh(t *testing.T) {
	Convey("Given a staleness bound", t, func() {
		bound := 3 * time.Hour
		fetched := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		entry := Entry{FetchedAt: fetched}

		Convey("An entry younger than the bound is fresh", func() {
			So(entry.Fresh(fetched.Add(time.Hour), bound), ShouldBeTrue)
		})

		Convey("An entry exactly at the bound is still fresh", func() {
			So(entry.Fresh(fetched.Add(bound), bound), ShouldBeTrue)
		})

		Convey("An entry one instant past the bound is stale", func() {
			So(entry.Fresh(fetched.Add(bound+time.Nanosecond), bound), ShouldBeFalse)
		})
	})
}
