package main

import (
	"fmt"
	"leadwallet/internal/client"
	"leadwallet/internal/repository"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "leadwallet-support",
		Usage: "Inspect and resolve failed wallet checkouts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Usage:   "Database URL",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "file:leadwallet.db?_busy_timeout=5000",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "failures",
				Usage: "List unresolved failed checkouts, oldest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Only this failure category, e.g. VERIFICATION_FAILURE"},
				},
				Action: listFailures,
			},
			{
				Name:      "resolve",
				Usage:     "Mark a failed checkout as handled",
				ArgsUsage: "<attempt-id>",
				Action:    resolve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func attempts(c *cli.Context) (repository.AttemptRepository, error) {
	db, err := client.InitDBClient(c.String("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return repository.NewAttemptRepository(db), nil
}

func listFailures(c *cli.Context) error {
	repo, err := attempts(c)
	if err != nil {
		return err
	}

	rows, err := repo.ListUnresolvedFailures(c.Context, c.String("category"))
	if err != nil {
		return fmt.Errorf("failed to list failures: %v", err)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tKIND\tORDER\tAMOUNT\tCATEGORY\tCREATED\tMESSAGE")
	for _, a := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
			a.ID, a.UserID, a.Kind, a.GatewayOrderID, a.Amount.String(), a.Currency,
			a.Category, a.CreatedAt.Format(time.RFC3339), a.Message)
	}
	return w.Flush()
}

func resolve(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.Exit("attempt id is required", 2)
	}

	repo, err := attempts(c)
	if err != nil {
		return err
	}

	if err := repo.MarkResolved(c.Context, id); err != nil {
		return fmt.Errorf("failed to resolve %s: %v", id, err)
	}
	fmt.Fprintf(c.App.Writer, "resolved %s\n", id)
	return nil
}
