// Command inputlayer runs an embedded InputLayer engine and drives it
// from a REPL read off stdin: each non-blank line is one statement
// batch, blank lines are skipped, and the REPL exits at EOF. It wires
// config, an Engine, and a Session
// together the way a long-running server would, just fed from a local
// terminal instead of a network listener, since InputLayer is an
// embedded single-process engine rather than a network service.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	inputlayer "github.com/inputlayer/inputlayer"
	"github.com/inputlayer/inputlayer/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults built in if omitted)")
	kgName := flag.String("kg", "default", "knowledge graph to open (created if it doesn't exist)")
	principal := flag.String("principal", "root", "principal to authenticate the session as")
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("inputlayer: load config")
		}
		cfg = loaded
	}

	engine := inputlayer.NewEngine(cfg, log)
	if _, err := engine.UseKG(*kgName); err != nil {
		if _, err := engine.CreateKG(*kgName); err != nil {
			log.WithError(err).Fatal("inputlayer: open knowledge graph")
		}
	}

	session, err := engine.OpenSession(*kgName, *principal, "")
	if err != nil {
		log.WithError(err).Fatal("inputlayer: open session")
	}
	defer session.Close()

	fmt.Printf("inputlayer: connected to %q as %q (%s)\n", *kgName, *principal, session.Permission())
	repl(session, log)
}

func repl(session *inputlayer.Session, log *logrus.Entry) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err := session.Execute(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printResult(result)
	}
}

func printResult(result *inputlayer.StatementResult) {
	if result.CommittedSeq > 0 {
		fmt.Printf("committed at seq %d\n", result.CommittedSeq)
	}
	for _, q := range result.Queries {
		fmt.Printf("%s: %d rows\n", q.Atom.Predicate, len(q.Rows))
		for _, row := range q.Rows {
			fields := make([]string, row.Arity())
			for i := 0; i < row.Arity(); i++ {
				fields[i] = row.At(i).String()
			}
			fmt.Println("  " + strings.Join(fields, ", "))
		}
	}
	for _, r := range result.Rules {
		fmt.Printf("rule %s <- %s\n", r.Predicate, r.Source)
	}
	if len(result.KGs) > 0 {
		fmt.Println("kgs:", strings.Join(result.KGs, ", "))
	}
	if result.Status != nil {
		s := result.Status
		fmt.Printf("kg=%s version=%d seq=%d relations=%d\n", s.KG, s.CatalogVersion, s.CommitSeq, len(s.Relations))
	}
}
