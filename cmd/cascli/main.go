// Command cascli is a thin demonstration client for the CAS broker
// protocol: connect, run one query or batch, print the result, disconnect.
// It respects the library's Non-goals (no TLS flag, no schema
// introspection subcommand) rather than growing tooling the client
// package itself does not implement.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brokersql/cas-go/client"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		handleQuery(os.Args[2:])
	case "exec":
		handleExec(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("cascli v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintln(os.Stderr, colorRed("✗")+" unknown command: "+os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(colorBold(colorCyan("cascli")) + " - run a query or statement against a CAS broker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cascli " + colorYellow("<command>") + " [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  " + colorGreen("query") + "     run a SQL query and print the first page of rows")
	fmt.Println("  " + colorGreen("exec") + "      run one or more statements for their side effects")
	fmt.Println("  " + colorGreen("version") + "   show version information")
	fmt.Println()
	fmt.Println("Environment variables (used when the matching flag is not set):")
	fmt.Println("  CAS_HOST, CAS_PORT, CAS_USER, CAS_PASSWORD, CAS_DATABASE")
}

func newSessionFromFlags(fs *flag.FlagSet) *client.Session {
	host := fs.String("host", envOr("CAS_HOST", "localhost"), "broker host")
	defaultPort := 33000
	fmt.Sscanf(os.Getenv("CAS_PORT"), "%d", &defaultPort)
	port := fs.Int("port", defaultPort, "broker port")
	user := fs.String("user", envOr("CAS_USER", "public"), "login user")
	password := fs.String("password", os.Getenv("CAS_PASSWORD"), "login password")
	database := fs.String("database", envOr("CAS_DATABASE", "demodb"), "database name")
	timeout := fs.Duration("timeout", 10*time.Second, "connect timeout")
	fs.Parse(fs.Args())

	return client.NewSession(
		client.WithHost(*host),
		client.WithPort(*port),
		client.WithUser(*user),
		client.WithPassword(*password),
		client.WithDatabase(*database),
		client.WithLoginTimeout(*timeout),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func handleQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	sql := fs.String("sql", "", "SQL query text")
	fs.Parse(args)
	session := newSessionFromFlags(fs)

	if *sql == "" {
		fmt.Fprintln(os.Stderr, colorRed("✗")+" --sql is required")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := session.Connect(ctx); err != nil {
		fatal(err)
	}
	defer session.Close(ctx)

	result, err := session.ExecuteQuery(ctx, *sql)
	if err != nil {
		fatal(err)
	}
	printRows(result)
}

func handleExec(args []string) {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	stmts := fs.String("sql", "", "semicolon-separated statements")
	fs.Parse(args)
	session := newSessionFromFlags(fs)

	if *stmts == "" {
		fmt.Fprintln(os.Stderr, colorRed("✗")+" --sql is required")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := session.Connect(ctx); err != nil {
		fatal(err)
	}
	defer session.Close(ctx)

	counts, err := session.ExecuteBatch(ctx, splitStatements(*stmts))
	if err != nil {
		fatal(err)
	}
	for i, c := range counts {
		fmt.Printf("  statement %d: %d row(s) affected\n", i+1, c)
	}
}

func splitStatements(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printRows(result *client.QueryResult) {
	for _, col := range result.Columns {
		fmt.Printf("%-16s", col.Name)
	}
	fmt.Println()
	for _, row := range result.Rows {
		for _, v := range row {
			fmt.Printf("%-16s", string(v))
		}
		fmt.Println()
	}
	fmt.Printf("\n%d row(s) shown of %d total\n", len(result.Rows), result.Total)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, colorRed("✗")+" "+err.Error())
	os.Exit(1)
}
