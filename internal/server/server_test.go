package server

import (
	"testing"
	"time"

	"github.com/d-bee/dbee/internal/dbclient"
)

func startTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	srv, err := New(Config{
		BaseDir:    t.TempDir(),
		ClientAddr: "127.0.0.1:0",
		AdminAddr:  "127.0.0.1:0",
		Workers:    4,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited before becoming ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server to become ready")
	}
	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})
	return srv, srv.ClientAddr().String(), srv.AdminAddr().String()
}

func TestEndToEndQueryAndCursor(t *testing.T) {
	srv, clientAddr, adminAddr := startTestServer(t)
	_ = srv

	admin, err := dbclient.DialAdminClient(adminAddr, adminKeyForTest(t, srv))
	if err != nil {
		t.Fatalf("dial admin: %v", err)
	}
	defer admin.Close()

	key, err := admin.NewDatabase("shop")
	if err != nil {
		t.Fatalf("new database: %v", err)
	}

	c, err := dbclient.DialClient(clientAddr, "shop", key)
	if err != nil {
		t.Fatalf("dial client: %v", err)
	}
	defer c.Close()

	if _, err := c.Query("create table items (name text, price number);"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := c.Query(`insert into items values ("widget", 5);`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Query(`insert into items values ("gadget", 9);`); err != nil {
		t.Fatalf("insert 2: %v", err)
	}

	row, err := c.Query("select * from items where price >= 5;")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !row.HasMore || row.Values[0].Text != "widget" {
		t.Fatalf("expected widget first, got %+v", row)
	}
	row, err = c.Next(row)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !row.HasMore || row.Values[0].Text != "gadget" {
		t.Fatalf("expected gadget second, got %+v", row)
	}
	row, err = c.Next(row)
	if err != nil {
		t.Fatalf("next exhausted: %v", err)
	}
	if row.HasMore {
		t.Fatal("expected cursor exhausted")
	}
}

func TestAuthRejectsWrongKey(t *testing.T) {
	_, clientAddr, _ := startTestServer(t)
	if _, err := dbclient.DialClient(clientAddr, "nosuchdb", "wrongkey"); err == nil {
		t.Fatal("expected authentication failure for an unknown database")
	}
}

func TestAdminDeleteDatabase(t *testing.T) {
	srv, _, adminAddr := startTestServer(t)
	admin, err := dbclient.DialAdminClient(adminAddr, adminKeyForTest(t, srv))
	if err != nil {
		t.Fatal(err)
	}
	defer admin.Close()

	if _, err := admin.NewDatabase("temp"); err != nil {
		t.Fatal(err)
	}
	if err := admin.DeleteDatabase("temp"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := admin.GetKey("temp"); err != nil {
		t.Fatalf("get-key after delete should not error, got: %v", err)
	}
}

// adminKeyForTest reaches into the server for its bootstrapped admin key;
// a real client learns it out of band (it is persisted to .env), but tests
// have no separate channel for it.
func adminKeyForTest(t *testing.T, srv *Server) string {
	t.Helper()
	return srv.adminKey
}
