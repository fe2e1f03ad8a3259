package store

import (
	"path/filepath"
	"slices"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	schema, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if schema.Applied {
		t.Error("second Migrate() applied migrations again")
	}
	if schema.Version != 2 {
		t.Errorf("version = %d, want 2 (init + credentials)", schema.Version)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c1", "r1", "hello", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("c2", "r1", "", "http://img/1.png"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ClientID != "c1" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}
	sending, _ := db.SendingOutbox()
	if len(sending) != 1 || sending[0].ClientID != "c1" {
		t.Fatalf("sending = %+v", sending)
	}

	if err := db.MarkOutboxSent("c1", "42"); err != nil {
		t.Fatal(err)
	}
	e, err := db.GetOutbox("c1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxSent || e.ServerMsgID != "42" {
		t.Errorf("entry = %+v", e)
	}

	if err := db.MarkOutboxFailed("c2", "rejected"); err != nil {
		t.Fatal(err)
	}
	e, _ = db.GetOutbox("c2")
	if e.Status != OutboxFailed || e.ErrorMessage != "rejected" || e.PhotoURL != "http://img/1.png" {
		t.Errorf("entry = %+v", e)
	}

	missing, err := db.GetOutbox("nope")
	if err != nil || missing != nil {
		t.Errorf("GetOutbox(nope) = %v, %v", missing, err)
	}
}

func TestQueueOutboxDuplicateClientID(t *testing.T) {
	db := testDB(t)
	if err := db.QueueOutbox("dup", "r1", "a", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("dup", "r1", "b", ""); err == nil {
		t.Error("expected unique constraint error for duplicate client id")
	}
}

func TestFailStaleSending(t *testing.T) {
	db := testDB(t)
	_ = db.QueueOutbox("a", "r", "x", "")
	_ = db.QueueOutbox("b", "r", "y", "")
	_ = db.MarkOutboxSending("a")

	n, err := db.FailStaleSending("daemon restarted")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("affected = %d, want 1", n)
	}
	e, _ := db.GetOutbox("a")
	if e.Status != OutboxFailed {
		t.Errorf("status = %s, want failed", e.Status)
	}
	e, _ = db.GetOutbox("b")
	if e.Status != OutboxQueued {
		t.Errorf("queued entry touched: %s", e.Status)
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.GetCheckpoint(CheckpointSelectedRoom); err != nil || ok {
		t.Fatalf("fresh checkpoint ok=%v err=%v", ok, err)
	}
	if err := db.SetCheckpoint(CheckpointSelectedRoom, "7"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint(CheckpointSelectedRoom, "9"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetCheckpoint(CheckpointSelectedRoom)
	if err != nil || !ok || v != "9" {
		t.Errorf("checkpoint = %q ok=%v err=%v", v, ok, err)
	}
}

func TestCredentialsRoundTripAndClear(t *testing.T) {
	db := testDB(t)

	if c, err := db.LoadCredentials(); err != nil || c != nil {
		t.Fatalf("fresh credentials = %v, %v", c, err)
	}
	in := Credentials{UserID: "3", Username: "ana", AccessToken: "a1", RefreshToken: "r1"}
	if err := db.SaveCredentials(in); err != nil {
		t.Fatal(err)
	}
	in.AccessToken = "a2"
	if err := db.SaveCredentials(in); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if *got != in {
		t.Errorf("credentials = %+v, want %+v", *got, in)
	}

	_ = db.ReplaceHiddenNotes([]string{"n1"})
	_ = db.SetCheckpoint(CheckpointSelectedRoom, "1")
	if err := db.ClearCredentials(); err != nil {
		t.Fatal(err)
	}
	if c, _ := db.LoadCredentials(); c != nil {
		t.Error("credentials survived clear")
	}
	if ids, _ := db.CachedHiddenNotes(); len(ids) != 0 {
		t.Errorf("hidden notes survived clear: %v", ids)
	}
	if _, ok, _ := db.GetCheckpoint(CheckpointSelectedRoom); ok {
		t.Error("checkpoint survived clear")
	}
}

func TestReplaceHiddenNotes(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceHiddenNotes([]string{"b", "a", "a"}); err != nil {
		t.Fatal(err)
	}
	ids, err := db.CachedHiddenNotes()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []string{"a", "b"}) {
		t.Errorf("ids = %v", ids)
	}

	if err := db.ReplaceHiddenNotes(nil); err != nil {
		t.Fatal(err)
	}
	ids, _ = db.CachedHiddenNotes()
	if len(ids) != 0 {
		t.Errorf("ids after replace(nil) = %v", ids)
	}
}
