package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"fitsync/internal/api"
	"fitsync/internal/auth"
	"fitsync/internal/export"
	"fitsync/internal/service"
	"fitsync/internal/store"
)

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		Store:     a.db,
		Syncer:    a.syncer,
		Batch:     a.scheduler,
		OAuth:     a.flow,
		Resolver:  a.resolver,
		JWTSecret: a.cfg.Server.JWTSecret,
		CronToken: a.cfg.Server.CronToken,
		Logger:    a.logger,
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.cfg.Server.JWTSecret == "" {
		a.logger.Warn("no jwt secret configured, trusting the X-User-ID header")
	}
	if !a.cfg.Sync.Disabled {
		a.scheduler.Start()
		defer a.scheduler.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", *addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) syncUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to sync (required)")
	clientID := fs.String("client-id", "", "override the Strava client id")
	clientSecret := fs.String("client-secret", "", "override the Strava client secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}

	appCreds, err := a.resolver.Resolve(ctx, auth.AppCredentials{ClientID: *clientID, ClientSecret: *clientSecret})
	if err != nil {
		return err
	}

	result, err := a.syncer.SyncUser(ctx, *userID, appCreds, service.ModeManual)
	if err != nil {
		return err
	}

	fmt.Printf("Synced %d activities for %s (%d new, %d updated)\n",
		result.ActivitiesProcessed, *userID, result.InsertedCount, result.UpdatedCount)
	for _, e := range result.Errors {
		fmt.Printf("  skipped: %v\n", e)
	}
	return nil
}

func (a *app) syncAll(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync-all", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	batch, err := a.scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tSTATUS\tPROCESSED\tNEW\tUPDATED\tERROR")
	for _, r := range batch.Results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.UserID, r.Status, r.ActivitiesProcessed, r.InsertedCount, r.UpdatedCount, r.Error)
	}
	w.Flush()

	fmt.Printf("\n%d succeeded, %d skipped, %d failed in %s\n",
		batch.Count(service.OutcomeSuccess),
		batch.Count(service.OutcomeSkipped),
		batch.Count(service.OutcomeError),
		batch.FinishedAt.Sub(batch.StartedAt).Round(time.Millisecond),
	)
	if n := batch.Count(service.OutcomeError); n > 0 {
		return fmt.Errorf("%d user(s) failed to sync", n)
	}
	return nil
}

func (a *app) connect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to connect (required)")
	addr := fs.String("callback-addr", "127.0.0.1:8089", "local address for the OAuth callback")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}

	// The user id doubles as OAuth state
	cs, err := auth.NewCallbackServer(*addr, *userID)
	if err != nil {
		return err
	}

	authURL, err := a.flow.Authorize(ctx, *userID, "", cs.RedirectURL())
	if err != nil {
		cs.Close()
		return err
	}

	fmt.Println("Open this URL in your browser to connect Strava:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Printf("Make sure %s is an authorized callback domain of your Strava app.\n", cs.RedirectURL())
	fmt.Println("Waiting for authorization...")

	code, err := cs.Wait(ctx, auth.AuthTimeout)
	if err != nil {
		return err
	}
	if err := a.flow.Exchange(ctx, *userID, code, auth.AppCredentials{}); err != nil {
		return err
	}

	creds, err := a.db.GetCredentials(ctx, *userID)
	if err != nil {
		return err
	}
	fmt.Printf("Connected %s to Strava athlete %s\n", *userID, creds.AthleteID)
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	userID := fs.String("user", "", "only show this user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	users := []string{*userID}
	if *userID == "" {
		var err error
		if users, err = a.db.ListConnectedUsers(ctx); err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No connected users.")
			return nil
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tATHLETE\tTOKEN EXPIRES\tLAST SYNC\tLAST RUN\tACTIVITIES")
	for _, u := range users {
		creds, err := a.db.GetCredentials(ctx, u)
		if errors.Is(err, store.ErrNoCredentials) {
			fmt.Fprintf(w, "%s\t-\tnot connected\t-\t-\t-\n", u)
			continue
		}
		if err != nil {
			return err
		}
		run, err := a.db.LastSyncRun(ctx, u)
		if err != nil {
			return err
		}
		count, err := a.db.CountActivities(ctx, u)
		if err != nil {
			return err
		}

		lastRun := "-"
		if run != nil {
			lastRun = fmt.Sprintf("%s %s (%s)", run.Outcome, humanize.Time(run.FinishedAt), run.Mode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u, orDash(creds.AthleteID), relative(creds.TokenExpiresAt), relative(creds.LastSyncAt),
			lastRun, humanize.Comma(int64(count)))
	}
	return w.Flush()
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to export (required)")
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}

	activities, err := a.db.ListActivities(ctx, *userID, 0, 0)
	if err != nil {
		return err
	}

	if *out == "" {
		return export.WriteCSV(os.Stdout, activities)
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	if err := export.WriteCSV(f, activities); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d activities to %s\n", len(activities), *out)
	return nil
}

func relative(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
