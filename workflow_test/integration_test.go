package workflow

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/niczy/zombies/internal/access"
	"github.com/niczy/zombies/internal/game"
	"github.com/niczy/zombies/internal/models"
	arenaservice "github.com/niczy/zombies/internal/services/arena"
	authorityservice "github.com/niczy/zombies/internal/services/authority"
	"github.com/niczy/zombies/internal/session"
	"github.com/niczy/zombies/internal/storage"
)

const sessionIssuer = "workflow-authority"

var (
	arenaServiceAddr     string
	authorityServiceAddr string
	cliBinaryPath        string
	cliHome              string

	arenaServer     *grpc.Server
	authorityServer *grpc.Server
)

// TestMain sets up and tears down services for all tests
func TestMain(m *testing.M) {
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		fmt.Println("Skipping integration tests. Set RUN_INTEGRATION_TESTS=1 to run.")
		os.Exit(0)
	}

	programID := models.Pubkey{0xee, 0x0f}
	authPub, authPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Printf("Failed to generate authority key: %v\n", err)
		os.Exit(1)
	}
	reg := session.NewMemoryRegistry()

	arenaServiceAddr, arenaServer, err = startArenaService(programID, session.NewVerifier(sessionIssuer, authPub, reg, nil))
	if err != nil {
		fmt.Printf("Failed to start arena service: %v\n", err)
		os.Exit(1)
	}

	issuer := session.NewIssuer(sessionIssuer, authPriv, reg, 24*time.Hour, nil)
	authorityServiceAddr, authorityServer, err = startAuthorityService(issuer, programID)
	if err != nil {
		fmt.Printf("Failed to start authority service: %v\n", err)
		stopServers()
		os.Exit(1)
	}

	cliBinaryPath, err = buildCLIBinary()
	if err != nil {
		fmt.Printf("Failed to build CLI: %v\n", err)
		stopServers()
		os.Exit(1)
	}

	// Keys generated by the CLI land under this HOME.
	cliHome, err = os.MkdirTemp("", "zombies-home-")
	if err != nil {
		fmt.Printf("Failed to create CLI home: %v\n", err)
		stopServers()
		os.Exit(1)
	}

	// Allow servers to bind before running tests
	time.Sleep(100 * time.Millisecond)

	code := m.Run()

	stopServers()
	os.Exit(code)
}

func startArenaService(programID models.Pubkey, verifier access.TokenVerifier) (string, *grpc.Server, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	program := game.New(game.Config{ProgramID: programID}, storage.NewInMemoryStorage(), access.NewGate(programID, verifier))
	srv := arenaservice.NewGRPCServer(program, 0, nil)
	go srv.Serve(lis)

	return lis.Addr().String(), srv, nil
}

func startAuthorityService(issuer *session.Issuer, programID models.Pubkey) (string, *grpc.Server, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	srv := authorityservice.NewGRPCServer(issuer, programID, 0, nil)
	go srv.Serve(lis)

	return lis.Addr().String(), srv, nil
}

func stopServers() {
	if arenaServer != nil {
		arenaServer.GracefulStop()
	}
	if authorityServer != nil {
		authorityServer.GracefulStop()
	}
	if cliBinaryPath != "" {
		_ = os.RemoveAll(filepath.Dir(cliBinaryPath))
	}
	if cliHome != "" {
		_ = os.RemoveAll(cliHome)
	}
}

func buildCLIBinary() (string, error) {
	tmpDir, err := os.MkdirTemp("", "zombies-cli-bin-")
	if err != nil {
		return "", err
	}

	binaryPath := filepath.Join(tmpDir, "zombies")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./zombies_cli")
	cmd.Dir = ".."
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("build failed: %w\nOutput:\n%s", err, string(output))
	}

	return binaryPath, nil
}

// runCLI executes a CLI command against the in-process services.
func runCLI(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fullArgs := append([]string{"--arena-addr", arenaServiceAddr, "--authority-addr", authorityServiceAddr}, args...)
	cmd := exec.CommandContext(ctx, cliBinaryPath, fullArgs...)
	cmd.Env = append(os.Environ(), "HOME="+cliHome)

	output, err := cmd.CombinedOutput()
	return string(output), err
}

func runCLIOrFail(t *testing.T, args ...string) string {
	t.Helper()

	output, err := runCLI(args...)
	if err != nil {
		t.Fatalf("CLI command failed: %v\nOutput:\n%s", err, output)
	}

	return output
}

func runCLIExpectFailure(t *testing.T, args ...string) string {
	t.Helper()

	output, err := runCLI(args...)
	if err == nil {
		t.Fatalf("expected CLI command %v to fail, got output:\n%s", args, output)
	}

	return output
}

func extractField(output, field string) string {
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(field) + `: (\S+)`)
	matches := re.FindStringSubmatch(output)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// uniqueName keeps key names distinct across tests sharing one HOME.
func uniqueName(base string) string {
	return fmt.Sprintf("%s-%d", base, time.Now().UnixNano())
}

// humanDNA builds a battle tuple every zombie beats.
func humanDNA(seed int64) string {
	return fmt.Sprintf("%x,%x,%x", 0x20000000000000+seed, 0x20000000000001+seed, 0x20000000000002+seed)
}
