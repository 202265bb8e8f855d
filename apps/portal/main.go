package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/classroom/core"
	"github.com/trezcool/classroom/core/course"
	"github.com/trezcool/classroom/core/session"
	emailsvc "github.com/trezcool/classroom/services/email"
	logsvc "github.com/trezcool/classroom/services/logger"
	"github.com/trezcool/classroom/storage/database"
	inmemdb "github.com/trezcool/classroom/storage/database/inmem"
	sqlxdb "github.com/trezcool/classroom/storage/database/sqlx"
	"github.com/trezcool/classroom/storage/tokenstore"
)

// waiter is implemented by the email services, pending emails are sent before exiting.
type waiter interface {
	Wait()
}

func main() {
	os.Exit(run())
}

func run() int {
	std := log.New(os.Stderr, "PORTAL : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Printf("error: loading config: %+v", err)
		return 1
	}

	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	session.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// the database has to exist before it can be opened
	if len(os.Args) > 1 && os.Args[1] == "migrate" && conf.Database.Engine == "postgres" {
		if err = database.CreateIfNotExist(ctx, conf); err != nil {
			std.Printf("error: %+v", err)
			return 1
		}
	}

	if conf.Database.Engine == "memory" {
		logger.Warn("memory engine: data and the session are lost when the command exits")
	}

	gw, db, err := openGateway(ctx, conf)
	if err != nil {
		std.Printf("error: %+v", err)
		return 1
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	var mailSvc core.EmailService
	if conf.SendgridApiKey != "" {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	} else {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stderr, logger)
	}

	cli := commandLine{
		sess:  session.NewManager(gw, validate, logger, mailSvc),
		store: course.NewStore(gw, validate, translator, logger),
		out:   os.Stdout,
	}
	if db != nil {
		cli.migrate = func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db, command, args...)
		}
	}

	err = cli.run(ctx, os.Args)
	if w, ok := mailSvc.(waiter); ok {
		w.Wait()
	}
	if err != nil {
		if err != errHelp {
			_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", core.ErrorMessage(err, translator))
		}
		return 1
	}
	return 0
}

func openGateway(ctx context.Context, conf *core.Config) (core.Gateway, *sqlx.DB, error) {
	switch conf.Database.Engine {
	case "memory":
		// nothing outlives the process: a session or a course is only visible to the command that made it
		return inmemdb.NewGateway(inmemdb.Open()), nil, nil
	case "postgres":
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening database")
		}
		gw := sqlxdb.NewGateway(db, sessionStore(conf), sqlxdb.Options{
			SecretKey:  conf.SecretKey,
			SessionTTL: conf.SessionTTL,
			Issuer:     conf.AppName,
		})
		return gw, db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

// sessionStore keeps the session in conf.SessionFile, or in memory for this run only when it is empty.
func sessionStore(conf *core.Config) sqlxdb.SessionStore {
	if conf.SessionFile == "" {
		return new(tokenstore.Memory)
	}
	return tokenstore.NewFile(conf.SessionFile)
}
