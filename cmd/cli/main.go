// Command cli is a deliberately thin line-reading client: no history, no
// color, no table pretty-printer. Commands are connect, new, delete, key,
// and exit, plus arbitrary SQL while connected.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/d-bee/dbee/internal/dbclient"
	"github.com/d-bee/dbee/internal/types"
)

func main() {
	clientAddr := flag.String("client-addr", "localhost:7070", "client TCP address")
	adminAddr := flag.String("admin-addr", "localhost:7071", "admin TCP address")
	adminKey := flag.String("admin-key", "", "admin key, needed for new/delete/key")
	flag.Parse()

	repl := &repl{clientAddr: *clientAddr, adminAddr: *adminAddr, adminKey: *adminKey}
	repl.run(os.Stdin, os.Stdout)
}

type repl struct {
	clientAddr, adminAddr, adminKey string
	client                          *dbclient.Client
	dbName                          string
}

func (r *repl) run(in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "d-bee> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			r.dispatch(line, out)
		}
		fmt.Fprint(out, "d-bee> ")
	}
	if r.client != nil {
		r.client.Close()
	}
}

func (r *repl) dispatch(line string, out *os.File) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "connect":
		r.connect(fields, out)
	case "new":
		r.newDatabase(fields, out)
	case "delete":
		r.deleteDatabase(fields, out)
	case "key":
		r.getKey(fields, out)
	case "exit", "quit":
		if r.client != nil {
			r.client.Close()
		}
		os.Exit(0)
	default:
		r.query(line, out)
	}
}

func (r *repl) connect(fields []string, out *os.File) {
	if len(fields) != 3 {
		fmt.Fprintln(out, "usage: connect <database> <key>")
		return
	}
	if r.client != nil {
		r.client.Close()
	}
	c, err := dbclient.DialClient(r.clientAddr, fields[1], fields[2])
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	r.client = c
	r.dbName = fields[1]
	fmt.Fprintln(out, "connected to", fields[1])
}

func (r *repl) withAdmin(out *os.File, f func(*dbclient.AdminClient) error) {
	if r.adminKey == "" {
		fmt.Fprintln(out, "error: -admin-key is required for this command")
		return
	}
	admin, err := dbclient.DialAdminClient(r.adminAddr, r.adminKey)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	defer admin.Close()
	if err := f(admin); err != nil {
		fmt.Fprintln(out, "error:", err)
	}
}

func (r *repl) newDatabase(fields []string, out *os.File) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: new <database>")
		return
	}
	r.withAdmin(out, func(admin *dbclient.AdminClient) error {
		key, err := admin.NewDatabase(fields[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "key:", key)
		return nil
	})
}

func (r *repl) deleteDatabase(fields []string, out *os.File) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: delete <database>")
		return
	}
	r.withAdmin(out, func(admin *dbclient.AdminClient) error {
		return admin.DeleteDatabase(fields[1])
	})
}

func (r *repl) getKey(fields []string, out *os.File) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: key <database>")
		return
	}
	r.withAdmin(out, func(admin *dbclient.AdminClient) error {
		key, ok, err := admin.GetKey(fields[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "no such database")
			return nil
		}
		fmt.Fprintln(out, "key:", key)
		return nil
	})
}

func (r *repl) query(line string, out *os.File) {
	if r.client == nil {
		fmt.Fprintln(out, "error: not connected, use: connect <database> <key>")
		return
	}
	row, err := r.client.Query(line)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if !row.HasMore {
		fmt.Fprintln(out, "ok")
		return
	}
	for {
		printRow(out, row.Values)
		row, err = r.client.Next(row)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		if !row.HasMore {
			return
		}
	}
}

func printRow(out *os.File, row types.Row) {
	parts := make([]string, len(row))
	for i, v := range row {
		if v.Kind == types.Text {
			parts[i] = v.Text
		} else {
			parts[i] = fmt.Sprintf("%d", v.Num)
		}
	}
	fmt.Fprintln(out, strings.Join(parts, " | "))
}
