package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/barnettlynn/nfctools/nested/internal/config"
	"github.com/barnettlynn/nfctools/pkg/mfclassic"
	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"
)

const configFileName = "config.yaml"

const (
	defaultUniqueFirstBytes = 256
	defaultMaxBatches       = 1000
)

var modes = []struct {
	name string
	desc string
}{
	{"nested", "detect nonce type, calibrate and collect nested nonces"},
	{"static", "collect nonces from a static-nonce card"},
	{"hardnested", "collect encrypted nonces for an offline hard-nested solver"},
	{"calibrate", "measure the nonce distance"},
	{"nonce-type", "classify the nonce generator"},
	{"check", "check the source key"},
	{"diagnose", "try well-known keys on the source block"},
	{"info", "show UID, ATQA and SAK"},
}

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configFlag := flag.String("config", "", "config file (default: config.yaml next to the binary or in cwd)")
	mode := flag.String("mode", "", "nested, static, hardnested, calibrate, nonce-type, check, diagnose or info")
	simulate := flag.Bool("simulate", false, "run against a simulated card instead of a reader")
	flag.Parse()

	// Configure slog
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	configPath := *configFlag
	if configPath == "" {
		var err error
		configPath, err = defaultConfigPath()
		if err != nil {
			log.Fatalf("resolve config path failed: %v", err)
		}
	}
	fmt.Printf("Using config: %s\n", configPath)

	if *mode == "" {
		*mode = chooseMode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch *mode {
	case "info":
		runInfo(configPath, *simulate)
	case "diagnose":
		runDiagnose(configPath, *simulate)
	case "check":
		runCheck(configPath, *simulate)
	case "nonce-type":
		runNonceType(ctx, configPath, *simulate)
	case "calibrate":
		runCalibrate(ctx, configPath, *simulate)
	case "nested":
		runNested(ctx, configPath, *simulate)
	case "static":
		runStatic(ctx, configPath, *simulate)
	case "hardnested":
		runHardNested(ctx, configPath, *simulate)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func chooseMode() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return modes[0].name
	}
	items := make([]string, len(modes))
	for i, m := range modes {
		items[i] = fmt.Sprintf("%-11s %s", m.name, m.desc)
	}
	idx := selectMenu("Select mode:", items)
	if idx < 0 {
		return modes[0].name
	}
	return modes[idx].name
}

// session bundles what every mode needs: the validated config, the
// transceiver and the known source key.
type session struct {
	cfg       *config.Config
	t         mfclassic.Transceiver
	source    mfclassic.Target
	sourceKey mfclassic.Key
	close     func()
}

func openSession(configPath string, mode config.ValidationMode, simulate bool) *session {
	cfg, err := config.LoadWithMode(configPath, mode)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	s := &session{cfg: cfg, sourceKey: mfclassic.DefaultKeys[0].Key, close: func() {}}
	if cfg.Source.Block != nil {
		kt, err := mfclassic.ParseKeyType(cfg.Source.KeyType)
		if err != nil {
			log.Fatalf("source key type invalid: %v", err)
		}
		s.source = mfclassic.Target{Block: byte(*cfg.Source.Block), KeyType: kt}
	}
	if cfg.Source.KeyHexFile != "" {
		s.sourceKey, err = mfclassic.LoadKeyHexFile(cfg.Source.KeyHexFile)
		if err != nil {
			log.Fatalf("source key file invalid: %v", err)
		}
	}

	if simulate {
		card, err := newSimulatedCard(cfg, s.sourceKey)
		if err != nil {
			log.Fatalf("simulated card: %v", err)
		}
		fmt.Println("Using simulated card")
		s.t = card
		return s
	}

	conn, err := mfclassic.Connect(*cfg.Runtime.ReaderIndex)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Using reader [%d]: %s\n", conn.ReaderIdx, conn.Reader)
	s.t = mfclassic.NewPN53xTransceiver(conn)
	s.close = conn.Close
	return s
}

func (s *session) target() mfclassic.Target {
	kt, err := mfclassic.ParseKeyType(s.cfg.Target.KeyType)
	if err != nil {
		log.Fatalf("target key type invalid: %v", err)
	}
	return mfclassic.Target{Block: byte(*s.cfg.Target.Block), KeyType: kt}
}

func (s *session) delay() time.Duration {
	if s.cfg.Attack.DelayUS == nil {
		return 0
	}
	return time.Duration(*s.cfg.Attack.DelayUS) * time.Microsecond
}

func (s *session) calibrationMode() mfclassic.CalibrationMode {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Attack.Calibration)) {
	case "fast":
		return mfclassic.CalibrateFast
	case "info":
		return mfclassic.CalibrateInfo
	default:
		return mfclassic.CalibrateFull
	}
}

func runInfo(configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationInfo, simulate)
	defer s.close()

	info, err := mfclassic.GetDeviceInfo(s.t)
	if err != nil {
		log.Fatalf("card detection failed: %v", err)
	}
	fmt.Printf("  UID:  % X\n", info.UID)
	fmt.Printf("  ATQA: % X\n", info.ATQA[:])
	fmt.Printf("  SAK:  %02X\n", info.SAK)
}

func runDiagnose(configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationDiagnose, simulate)
	defer s.close()

	keys := mfclassic.DefaultKeys
	if s.cfg.Source.KeyHexFile != "" {
		keys = append([]mfclassic.KnownKey{{Key: s.sourceKey, Usage: filepath.Base(s.cfg.Source.KeyHexFile)}}, keys...)
	}
	fmt.Printf("\nProbing %d keys on %s\n\n", len(keys), s.source)
	results := mfclassic.DiagnoseKeys(s.t, []mfclassic.Target{s.source}, keys)
	mfclassic.PrintKeyProbes(results)

	for _, r := range results {
		if r.Result == mfclassic.KeyValid {
			fmt.Printf("\nKey found: %s (%s)\n", r.Key, r.Usage)
			return
		}
	}
	fmt.Println("\nNo key found")
}

func runCheck(configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationCheck, simulate)
	defer s.close()

	res, err := mfclassic.CheckKey(s.t, s.source, s.sourceKey)
	switch res {
	case mfclassic.KeyValid:
		fmt.Printf("Key %s is valid for %s\n", s.sourceKey, s.source)
	case mfclassic.KeyInvalid:
		step, _ := mfclassic.ClassifyAuthError(err)
		fmt.Printf("Key %s is invalid for %s (failed at %s: %v)\n", s.sourceKey, s.source, step, err)
		os.Exit(1)
	default:
		log.Fatalf("no tag: %v", err)
	}
}

func runNonceType(ctx context.Context, configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationInfo, simulate)
	defer s.close()

	nt, err := mfclassic.CheckNonceType(ctx, s.t)
	if err != nil {
		log.Fatalf("nonce type check failed: %v", err)
	}
	fmt.Printf("Nonce generator: %s\n", nt)
}

func runCalibrate(ctx context.Context, configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationCalibrate, simulate)
	defer s.close()

	est, err := calibrate(ctx, s)
	if err != nil {
		log.Fatalf("calibration failed: %v", err)
	}
	mfclassic.PrintDistance(est)
}

func calibrate(ctx context.Context, s *session) (mfclassic.DistanceEstimate, error) {
	mode := s.calibrationMode()
	fmt.Printf("Calibrating nonce distance (%s)\n", mode)
	return mfclassic.CalibrateDistance(ctx, s.t, mfclassic.CalibrateParams{
		Source: s.source,
		Key:    s.sourceKey,
		Delay:  s.delay(),
		Mode:   mode,
	})
}

func runNested(ctx context.Context, configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationNested, simulate)
	defer s.close()
	target := s.target()

	if res, err := mfclassic.CheckKey(s.t, s.source, s.sourceKey); res != mfclassic.KeyValid {
		log.Fatalf("source key %s does not open %s: %v", s.sourceKey, s.source, err)
	}

	nonceType, err := mfclassic.CheckNonceType(ctx, s.t)
	if err != nil {
		log.Fatalf("nonce type check failed: %v", err)
	}
	fmt.Printf("Nonce generator: %s\n", nonceType)
	switch nonceType {
	case mfclassic.NonceNoTag:
		log.Fatal("no tag")
	case mfclassic.NonceStatic:
		static(ctx, s, target)
		return
	}

	var distance uint32
	if s.cfg.Attack.Distance != nil {
		distance = uint32(*s.cfg.Attack.Distance)
		fmt.Printf("Using configured nonce distance %d\n", distance)
	} else {
		est, err := calibrate(ctx, s)
		if errors.Is(err, mfclassic.ErrNotVulnerable) {
			fmt.Println("Nonces are not predictable; use -mode hardnested")
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("calibration failed: %v", err)
		}
		mfclassic.PrintDistance(est)
		distance = est.Average
	}

	maxAttempts := mfclassic.DefaultNestedAttempts
	if s.cfg.Attack.MaxAttempts != nil {
		maxAttempts = *s.cfg.Attack.MaxAttempts
	}
	bar := pb.StartNew(maxAttempts)
	res, err := mfclassic.NestedAttack(ctx, s.t, mfclassic.NestedParams{
		Source:      s.source,
		Key:         s.sourceKey,
		Target:      target,
		Distance:    distance,
		Delay:       s.delay(),
		MaxAttempts: maxAttempts,
		OnAttempt: func(attempt, found int) {
			bar.SetCurrent(int64(attempt))
		},
	})
	bar.Finish()

	fmt.Println()
	mfclassic.PrintNestedResult(target, res)
	if err != nil {
		log.Fatalf("nested attack %s: %v", res.Outcome, err)
	}
}

func runStatic(ctx context.Context, configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationNested, simulate)
	defer s.close()
	static(ctx, s, s.target())
}

func static(ctx context.Context, s *session, target mfclassic.Target) {
	res, err := mfclassic.StaticNestedAttack(ctx, s.t, mfclassic.StaticParams{
		Source: s.source,
		Key:    s.sourceKey,
		Target: target,
	})
	fmt.Println()
	mfclassic.PrintStaticResult(target, res)
	if err != nil {
		log.Fatalf("static nested attack %s: %v", res.Outcome, err)
	}
}

func runHardNested(ctx context.Context, configPath string, simulate bool) {
	s := openSession(configPath, config.ValidationHardNested, simulate)
	defer s.close()
	target := s.target()

	unique := defaultUniqueFirstBytes
	if s.cfg.HardNested.UniqueFirstBytes != nil {
		unique = *s.cfg.HardNested.UniqueFirstBytes
	}
	maxBatches := defaultMaxBatches
	if s.cfg.HardNested.MaxBatches != nil {
		maxBatches = *s.cfg.HardNested.MaxBatches
	}

	path := s.cfg.HardNested.NonceLog
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		if !confirm(fmt.Sprintf("Append to existing nonce log %s?", path)) {
			fmt.Println("Aborted")
			return
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("open nonce log: %v", err)
	}
	defer f.Close()
	fmt.Printf("Collecting hard nested nonces for %s (source %s)\n", target, s.source)
	bar := pb.StartNew(unique)
	sum, err := collectHardNested(ctx, s.t, mfclassic.HardParams{
		Source: s.source,
		Key:    s.sourceKey,
		Target: target,
	}, f, unique, maxBatches, func(n int) { bar.SetCurrent(int64(n)) })
	bar.Finish()
	if err != nil {
		log.Fatal(err)
	}
	if sum.StaticEncrypted {
		fmt.Println("Encrypted nonces are static; hard nested cannot proceed")
		os.Exit(1)
	}

	fmt.Printf("\nCollected %d nonces in %d batches, %d/%d unique first bytes\n", sum.Records, sum.Batches, sum.Unique, unique)
	fmt.Printf("Nonce log: %s\n", path)
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
