package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/apiclient"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/clientstore"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/config"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/console"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
)

// app is one console "tab": restored auth state plus the processo board.
type app struct {
	provider *console.AuthProvider
	board    *console.Board
	pages    *console.PageClient
}

func newApp(logger *zap.SugaredLogger) (*app, error) {
	cfg, err := config.LoadConsole()
	if err != nil {
		return nil, err
	}
	apiBase, err := cfg.APIBase()
	if err != nil {
		return nil, err
	}
	consoleBase, err := cfg.ConsoleBase()
	if err != nil {
		return nil, err
	}
	storage := clientstore.NewFileStorage(cfg.StoragePath)
	jar, err := clientstore.NewCookieJar(storage, logger)
	if err != nil {
		return nil, errors.Wrap(err, "cookie jar")
	}
	// One client for the bridge, the pages and the API so the session cookie
	// set by the bridge is the one the pages see.
	httpClient := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	store := clientstore.New(storage, logger)
	provider := console.NewAuthProvider(auth.NewService(apiBase, consoleBase, httpClient, logger), store, logger)
	provider.Mount()
	board := console.NewBoard(
		console.NewProcessoClient(apiclient.New(apiBase, httpClient, store)),
		console.WriterNotifier{W: os.Stdout},
		logger,
	)
	pages := console.NewPageClient(consoleBase, httpClient)
	return &app{provider: provider, board: board, pages: pages}, nil
}

// action builds the app before running fn.
func action(logger *zap.SugaredLogger, fn func(c *cli.Context, a *app) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		a, err := newApp(logger)
		if err != nil {
			return errors.Wrap(err, "start console")
		}
		return fn(c, a)
	}
}

var processoFlags = []cli.Flag{
	cli.StringFlag{Name: "numero, n", Usage: "Número do processo"},
	cli.StringFlag{Name: "assunto, a", Usage: "Assunto"},
	cli.StringFlag{Name: "interessado, i", Usage: "Interessado"},
	cli.StringFlag{Name: "status, s", Usage: "Recebido | Em andamento | Concluído"},
	cli.StringFlag{Name: "prioridade, p", Usage: "Baixa | Média | Alta"},
}

func commands(ctx context.Context, logger *zap.SugaredLogger) []cli.Command {
	return []cli.Command{
		{
			Name:  "login",
			Usage: "Authenticate and store the session",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "username, u", Usage: "Usuário"},
				cli.StringFlag{Name: "password, p", Usage: "Senha", EnvVar: "CONSOLE_PASSWORD"},
			},
			Action: action(logger, func(c *cli.Context, a *app) error {
				out := console.SubmitLogin(ctx, a.provider, c.String("username"), c.String("password"))
				if !out.Success {
					return errors.New(out.Message)
				}
				s := a.provider.State()
				fmt.Printf("Bem-vindo, %s (%s)\n", s.User.Username, s.User.Role)
				return nil
			}),
		},
		{
			Name:  "logout",
			Usage: "Clear the stored session",
			Action: action(logger, func(c *cli.Context, a *app) error {
				a.provider.Logout(ctx)
				fmt.Println("Sessão encerrada.")
				return nil
			}),
		},
		{
			Name:  "whoami",
			Usage: "Show the stored user",
			Action: action(logger, func(c *cli.Context, a *app) error {
				s := a.provider.State()
				if !s.IsAuthenticated || s.User == nil {
					return errors.New("não autenticado")
				}
				fmt.Printf("%s\t%s", s.User.Username, s.User.Role)
				if s.User.Exp != nil {
					fmt.Printf("\texpira em %s", time.Unix(*s.User.Exp, 0).Format(time.RFC3339))
				}
				fmt.Println()
				return nil
			}),
		},
		{
			Name:      "page",
			Usage:     "Request a console page with the stored session cookie",
			ArgsUsage: "[path]",
			Action: action(logger, func(c *cli.Context, a *app) error {
				path := c.Args().First()
				if path == "" {
					path = "/processos"
				}
				res, err := a.pages.Open(ctx, path)
				if err != nil {
					return err
				}
				if res.Location != "" {
					fmt.Printf("%d -> %s\n", res.Status, res.Location)
					return nil
				}
				fmt.Println(res.Status)
				return nil
			}),
		},
		{
			Name:  "list",
			Usage: "List processos",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "filter, f", Usage: "Filtro por texto"},
			},
			Action: action(logger, func(c *cli.Context, a *app) error {
				a.board.Load(ctx)
				printProcessos(a.board.Filter(c.String("filter")))
				return nil
			}),
		},
		{
			Name:  "create",
			Usage: "Create a processo",
			Flags: processoFlags,
			Action: action(logger, func(c *cli.Context, a *app) error {
				a.board.Load(ctx)
				return a.board.Save(ctx, 0, payloadFromFlags(c, entity.NewPayload(time.Now())))
			}),
		},
		{
			Name:      "update",
			Usage:     "Update a processo; unset flags keep their current value",
			ArgsUsage: "<id>",
			Flags:     processoFlags,
			Action: action(logger, func(c *cli.Context, a *app) error {
				ids, err := parseIDs(c.Args())
				if err != nil || len(ids) != 1 {
					return errors.New("informe um id")
				}
				a.board.Load(ctx)
				current, ok := a.board.Find(ids[0])
				if !ok {
					return errors.Errorf("processo %d não encontrado", ids[0])
				}
				in := payloadFromFlags(c, current.Payload)
				in.AtualizadoEm = time.Now()
				return a.board.Save(ctx, ids[0], in)
			}),
		},
		{
			Name:      "delete",
			Usage:     "Delete one or more processos",
			ArgsUsage: "<id>...",
			Action: action(logger, func(c *cli.Context, a *app) error {
				ids, err := parseIDs(c.Args())
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					return errors.New("informe ao menos um id")
				}
				a.board.Load(ctx)
				if len(ids) == 1 {
					a.board.Remove(ctx, ids[0])
				} else {
					a.board.RemoveSelected(ctx, ids)
				}
				return nil
			}),
		},
	}
}

func payloadFromFlags(c *cli.Context, base entity.Payload) entity.Payload {
	if c.IsSet("numero") {
		base.Numero = c.String("numero")
	}
	if c.IsSet("assunto") {
		base.Assunto = c.String("assunto")
	}
	if c.IsSet("interessado") {
		base.Interessado = c.String("interessado")
	}
	if c.IsSet("status") {
		base.Status = entity.Status(c.String("status"))
	}
	if c.IsSet("prioridade") {
		base.Prioridade = entity.Prioridade(c.String("prioridade"))
	}
	return base
}

func parseIDs(args cli.Args) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "id inválido %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printProcessos(items []entity.Processo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNÚMERO\tASSUNTO\tINTERESSADO\tSTATUS\tPRIORIDADE\tATUALIZADO")
	for _, p := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Numero, p.Assunto, p.Interessado, p.Status, p.Prioridade,
			p.AtualizadoEm.Local().Format("02/01/2006"))
	}
	_ = w.Flush()
}
