package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leeineian/howie/home"
	"github.com/leeineian/howie/proc"
	"github.com/leeineian/howie/sys"
)

const pidFile = ".bot.pid"

func main() {
	// LogFatal panics so deferred cleanup still runs
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	flag.Parse()

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}
	sys.InitLogger(*silent || cfg.Silent, cfg.LogToFile)

	if err := sys.InitDatabase(context.Background(), cfg.DataSourceName()); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
	defer sys.CloseDatabase()

	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())

	release, err := acquirePIDLock(pidFile)
	if err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
	defer release()

	if err := run(cfg, *skipReg); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
}

func run(cfg *sys.Config, skipReg bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	sys.SetAppContext(ctx)

	sys.LoadCommandPrefix(ctx, cfg)

	cache := proc.NewCacheStore(cfg.CacheDir)
	if err := cache.PurgeAll(); err != nil {
		sys.LogWarn(sys.MsgCacheDeleteFail, cfg.CacheDir, err)
	}

	client, err := sys.CreateClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	settings := proc.Settings{
		MaxDurationMinutes: cfg.MaxDurationMinutes,
		IdleTimeout:        cfg.IdleTimeout,
		StreamingEnabled:   cfg.StreamingEnabled,
	}
	source := proc.NewYTDLPSource()
	engine := proc.NewEngine(
		proc.NewPipeline(source, cache),
		proc.NewQueue(),
		proc.NewDiscordTransport(client),
		settings,
		home.NewAnnouncer(client),
	)
	coord := proc.NewCoordinator(engine, &proc.Eligibility{Source: source, Settings: settings})
	home.Setup(home.NewRouter(client, coord, source, cfg))

	if !skipReg {
		go func() {
			if err := sys.RegisterCommands(client, cfg.GuildID); err != nil {
				sys.LogError(sys.MsgBotRegisterFail, err)
			}
		}()
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf(sys.MsgBotGatewayFail, err)
	}

	<-ctx.Done()
	if !sys.IsSilent {
		fmt.Println()
	}
	sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())

	exitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.Exit(exitCtx)
	return nil
}

// acquirePIDLock holds an exclusive lock on path, terminating a previous
// instance that still owns it.
func acquirePIDLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for attempts := 0; ; attempts++ {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK || attempts > 100 {
			f.Close()
			return nil, err
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr == nil && oldPid != os.Getpid() {
			if process, procErr := os.FindProcess(oldPid); procErr == nil {
				sys.LogInfo(sys.MsgBotKillingOld, oldPid)
				_ = process.Signal(syscall.SIGTERM)
			}
		}
		<-ticker.C
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(path)
	}, nil
}
