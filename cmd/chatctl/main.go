// chatctl is an operator's inspector for a bananachat store: it lists
// events, users, and groups straight out of BadgerDB, and can seed accounts.
// Read commands open the store in read-only mode with the lock guard
// bypassed, so they work while the server holds the directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"bananachat/auth"
	"bananachat/domain"
	"bananachat/internal"
	"bananachat/presence"
	"bananachat/repositories"
	"bananachat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	command := "events"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "events":
		fs := flag.NewFlagSet("events", flag.ExitOnError)
		group := fs.Int64("group", 0, "Restrict to one group's messages")
		_ = fs.Parse(args)
		listEvents(config, domain.GroupID(*group))
	case "users":
		listUsers(config)
	case "groups":
		listGroups(config)
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		username := fs.String("username", "", "Username")
		email := fs.String("email", "", "Email address")
		display := fs.String("display", "", "Display name")
		password := fs.String("password", "", "Password")
		_ = fs.Parse(args)
		register(config, *username, *email, *display, *password)
	default:
		log.Fatalf("Unknown command %q (want events, users, groups or register)", command)
	}
}

func openReadOnly(config internal.Config) *badger.DB {
	// BypassLockGuard allows opening while the server holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return db
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

func listEvents(config internal.Config, groupID domain.GroupID) {
	db := openReadOnly(config)
	defer db.Close()

	prefix := "hist:"
	if groupID != 0 {
		prefix = fmt.Sprintf("gmsg:%d:", groupID)
	}

	table := newTable([]string{"ID", "Kind", "At", "Sender", "Recipient", "Group", "Content"})
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var e domain.ChatEvent
				if err := json.Unmarshal(v, &e); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(it.Item().Key()), err)
					return nil
				}

				content := e.Content
				if e.Edited {
					content += color.Gray.Render(" (edited)")
				}
				group := ""
				if e.GroupID != 0 {
					group = strconv.FormatInt(int64(e.GroupID), 10)
				}
				table.Append([]string{
					strconv.FormatUint(uint64(e.ID), 10),
					string(e.Kind),
					e.Timestamp.Format("15:04:05"),
					e.Sender,
					e.Recipient,
					group,
					content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func listUsers(config internal.Config) {
	db := openReadOnly(config)
	defer db.Close()

	users := repositories.NewUserRepository(db)
	records, err := users.All()
	if err != nil {
		log.Fatal(err)
	}

	table := newTable([]string{"Username", "Email", "Display", "Online", "Active", "Last seen"})
	for _, r := range records {
		online := color.Red.Render("offline")
		if r.Online {
			online = color.Green.Render("online")
		}
		lastSeen := "-"
		if !r.LastSeen.IsZero() {
			lastSeen = r.LastSeen.Format("2006-01-02 15:04:05")
		}
		table.Append([]string{r.Username, r.Email, r.DisplayName, online, strconv.FormatBool(r.Active), lastSeen})
	}
	table.Render()
}

func listGroups(config internal.Config) {
	db := openReadOnly(config)
	defer db.Close()

	log_ := logs.GetLoggerFromString(config.LogLevel)
	groups := repositories.NewGroupRepository(db, log_)
	all, err := groups.All()
	if err != nil {
		log.Fatal(err)
	}

	table := newTable([]string{"ID", "Name", "Owner", "Visibility", "Members", "Max", "Active"})
	for _, g := range all {
		table.Append([]string{
			strconv.FormatInt(int64(g.ID), 10),
			g.Name,
			g.Owner,
			string(g.Visibility),
			strconv.Itoa(g.MemberCount()),
			strconv.Itoa(g.MaxMembers),
			strconv.FormatBool(g.Active),
		})
	}
	table.Render()
}

// register seeds an account directly in the store; the server must be down
// since this needs the write lock.
func register(config internal.Config, username, email, display, password string) {
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log_ := logs.GetLoggerFromString(config.LogLevel)
	users := repositories.NewUserRepository(db)
	tokens := auth.NewTokenIssuer(config.AuthTokenSecret, config.AuthTokenDuration)
	identity := services.NewIdentityService(users, presence.NewRegistry(), tokens, log_)

	token, err := identity.Register(username, email, display, password)
	if err != nil {
		log.Fatalf("Registration failed: %v", err)
	}
	color.Green.Printf("Registered %s\n", username)
	fmt.Println(string(token))
}
