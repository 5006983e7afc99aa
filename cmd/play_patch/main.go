package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	soundscape "github.com/cbegin/soundscape-go"
)

// macroFlags collects repeated -macro name=value settings.
type macroFlags map[string]float64

func (m macroFlags) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s=%g", k, v))
	}
	return strings.Join(parts, ",")
}

func (m macroFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("macro %s: %w", name, err)
	}
	m[strings.TrimSpace(name)] = v
	return nil
}

func main() {
	_ = godotenv.Load()

	macros := macroFlags{}
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		patchPath  = flag.String("file", "", "path to a JSON or YAML patch")
		seed       = flag.Uint64("seed", 0, "random seed (0 = random)")
		duration   = flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
		summary    = flag.Bool("summary", false, "print the patch summary and exit")
	)
	flag.Var(macros, "macro", "macro setting name=value (repeatable)")
	flag.Parse()

	if strings.TrimSpace(*patchPath) == "" {
		*patchPath = os.Getenv("PATCH_FILE")
	}
	if strings.TrimSpace(*patchPath) == "" {
		log.Fatal("no patch: pass -file or set PATCH_FILE")
	}
	data, err := os.ReadFile(*patchPath)
	if err != nil {
		log.Fatal(err)
	}

	opts := []soundscape.EngineOption{soundscape.WithAudioOutput(!*summary)}
	if *seed != 0 {
		opts = append(opts, soundscape.WithSeed(*seed))
	}
	engine, err := soundscape.New(*sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	ch := engine.Watch()
	if err := engine.LoadPatch(data); err != nil {
		log.Fatal(err)
	}
	for name, v := range macros {
		if err := engine.SetMacro(name, v); err != nil {
			log.Fatal(err)
		}
	}
	if *summary {
		fmt.Print(engine.Summary())
		return
	}
	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	for {
		select {
		case d := <-ch:
			fmt.Println(d)
			if d.Severity == soundscape.SeverityFatal {
				os.Exit(1)
			}
		case <-sig:
			goto done
		case <-timeout:
			goto done
		}
	}
done:
	stats := engine.Stats()
	if err := engine.Stop(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("dispatched %d, skipped %d, late %d\n", stats.Dispatched, stats.Skipped, stats.Late)
}
