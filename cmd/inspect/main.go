// Command inspect dumps the chat store for operators: registered users or
// the stored message log, straight from a BadgerDB directory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type userRecord struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	IsActive  bool   `json:"is_active"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt int64  `json:"created_at"`
}

type messageRecord struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
	Lang   string `json:"lang"`
	SentAt int64  `json:"sent_at"`
}

func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	mode := flag.String("mode", "messages", "What to dump: users or messages")
	limit := flag.Int("limit", 100, "Maximum rows to print")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db path")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	switch *mode {
	case "users":
		err = dumpUsers(db, *limit)
	case "messages":
		err = dumpMessages(db, *limit)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func dumpUsers(db *badger.DB, limit int) error {
	table := newTable([]string{"ID", "Login", "Active", "Admin", "Created"})
	count := 0

	err := scanPrefix(db, "user:login:", limit, func(key string, value []byte) error {
		var rec userRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return nil
		}
		table.Append([]string{
			shortID(rec.ID),
			rec.Login,
			flag01(rec.IsActive),
			flag01(rec.IsAdmin),
			time.Unix(rec.CreatedAt, 0).UTC().Format(time.DateTime),
		})
		count++
		return nil
	})
	if err != nil {
		return err
	}

	color.Green.Printf("%d user(s)\n", count)
	table.Render()
	return nil
}

func dumpMessages(db *badger.DB, limit int) error {
	table := newTable([]string{"Time", "Author", "Lang", "Body"})
	count := 0

	err := scanPrefix(db, "msg:", limit, func(key string, value []byte) error {
		var rec messageRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return nil
		}
		table.Append([]string{
			time.Unix(0, rec.SentAt).UTC().Format("15:04:05"),
			rec.Author,
			rec.Lang,
			rec.Body,
		})
		count++
		return nil
	})
	if err != nil {
		return err
	}

	color.Green.Printf("%d message(s)\n", count)
	table.Render()
	return nil
}

func scanPrefix(db *badger.DB, prefix string, limit int, fn func(key string, value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		seen := 0
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && seen < limit; it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				return fn(key, v)
			})
			if err != nil {
				return err
			}
			seen++
		}
		return nil
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func flag01(b bool) string {
	if b {
		return color.Green.Sprint("yes")
	}
	return "no"
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
