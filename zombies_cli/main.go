package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/niczy/zombies/internal/models"
	"github.com/niczy/zombies/internal/services/arena"
	"github.com/niczy/zombies/internal/services/authority"
	"github.com/niczy/zombies/internal/services/wire"
)

var (
	arenaServerAddr     = flag.String("arena-addr", "localhost:50051", "Arena service address")
	authorityServerAddr = flag.String("authority-addr", "localhost:50052", "Authority service address")
)

type CLI struct {
	arenaConn       *grpc.ClientConn
	authorityConn   *grpc.ClientConn
	arenaClient     *arena.Client
	authorityClient *authority.Client
	keys            *KeyStore
}

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printHelp()
		return
	}

	keys, err := NewKeyStore()
	if err != nil {
		log.Fatalf("Failed to open key store: %v", err)
	}
	if args[0] == "keygen" {
		handleKeygen(keys, args[1:])
		return
	}

	cli, err := NewCLI(*arenaServerAddr, *authorityServerAddr, keys)
	if err != nil {
		log.Fatalf("Failed to initialize CLI: %v", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	switch args[0] {
	case "init":
		handleInit(ctx, cli, args[1:])
	case "army":
		handleArmy(ctx, cli, args[1:])
	case "battle":
		handleBattle(ctx, cli, args[1:])
	case "remove":
		handleRemove(ctx, cli, args[1:])
	case "battle-info":
		handleBattleInfo(ctx, cli, args[1:])
	case "session":
		handleSessionCommand(ctx, cli, args[1:])
	default:
		log.Printf("Unknown command: %s", args[0])
		printHelp()
	}
}

func NewCLI(arenaAddr, authorityAddr string, keys *KeyStore) (*CLI, error) {
	arenaConn, err := grpc.Dial(arenaAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to arena service: %w", err)
	}

	authorityConn, err := grpc.Dial(authorityAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		arenaConn.Close()
		return nil, fmt.Errorf("failed to connect to authority service: %w", err)
	}

	return &CLI{
		arenaConn:       arenaConn,
		authorityConn:   authorityConn,
		arenaClient:     arena.NewClient(arenaConn),
		authorityClient: authority.NewClient(authorityConn),
		keys:            keys,
	}, nil
}

func (c *CLI) Close() {
	if c.arenaConn != nil {
		c.arenaConn.Close()
	}
	if c.authorityConn != nil {
		c.authorityConn.Close()
	}
}

// signerFlags are shared by commands that act on an army.
type signerFlags struct {
	key     *string
	owner   *string
	session *string
}

func addSignerFlags(fs *flag.FlagSet) signerFlags {
	return signerFlags{
		key:     fs.String("key", "default", "Name of the signing key"),
		owner:   fs.String("owner", "", "Army owner (key name or hex); defaults to the signing key"),
		session: fs.String("session", "", "Session token when signing with a session key"),
	}
}

func (f signerFlags) resolve(cli *CLI) (ed25519.PrivateKey, models.Pubkey) {
	priv, err := cli.keys.Load(*f.key)
	if err != nil {
		log.Fatalf("Failed to load key %q: %v", *f.key, err)
	}
	owner := publicKey(priv)
	if *f.owner != "" {
		if owner, err = cli.keys.Resolve(*f.owner); err != nil {
			log.Fatalf("Failed to resolve owner: %v", err)
		}
	}
	return priv, owner
}

func handleKeygen(keys *KeyStore, args []string) {
	if len(args) < 1 {
		log.Println("Usage: zombies keygen <name>")
		return
	}

	priv, err := keys.Generate(args[0])
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	fmt.Printf("Key: %s\n", args[0])
	fmt.Printf("Public key: %s\n", publicKey(priv))
}

func handleInit(ctx context.Context, cli *CLI, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	key := fs.String("key", "default", "Name of the owner key")
	fs.Parse(args)

	priv, err := cli.keys.Load(*key)
	if err != nil {
		log.Fatalf("Failed to load key %q: %v", *key, err)
	}
	owner := publicKey(priv)

	resp, err := cli.arenaClient.InitArmy(ctx, &arena.InitArmyRequest{
		Auth: wire.Sign(priv, owner, "", time.Now(), arena.OpInitArmy),
	})
	if err != nil {
		log.Fatalf("Failed to initialize army: %v", err)
	}

	fmt.Printf("Army initialized: %s\n", resp.Address)
	printArmy(&resp.Army)
}

func handleArmy(ctx context.Context, cli *CLI, args []string) {
	if len(args) < 1 {
		log.Println("Usage: zombies army <owner>")
		return
	}

	owner, err := cli.keys.Resolve(args[0])
	if err != nil {
		log.Fatalf("Failed to resolve owner: %v", err)
	}

	resp, err := cli.arenaClient.GetArmy(ctx, &arena.GetArmyRequest{Owner: owner.String()})
	if err != nil {
		log.Fatalf("Failed to get army: %v", err)
	}

	fmt.Printf("Army: %s\n", resp.Address)
	printArmy(&resp.Army)
}

func handleBattle(ctx context.Context, cli *CLI, args []string) {
	fs := flag.NewFlagSet("battle", flag.ExitOnError)
	signer := addSignerFlags(fs)
	zombieID := fs.Uint("zombie", 0, "Slot of the zombie that fights")
	selection := fs.Uint("selection", 0, "Card to pick (0-2)")
	dnaList := fs.String("dna", "", "Comma-separated dna1,dna2,dna3 in hex; random human DNA when empty")
	fs.Parse(args)

	priv, owner := signer.resolve(cli)
	dna, err := parseDNA(*dnaList)
	if err != nil {
		log.Fatalf("Invalid --dna: %v", err)
	}

	zid, sel := uint32(*zombieID), uint32(*selection)
	resp, err := cli.arenaClient.Battle(ctx, &arena.BattleRequest{
		Auth:      wire.Sign(priv, owner, *signer.session, time.Now(), arena.OpBattle, arena.BattleArgs(zid, sel, dna)...),
		ZombieID:  zid,
		Selection: sel,
		DNA:       dna,
	})
	if err != nil {
		log.Fatalf("Battle failed: %v", err)
	}

	fmt.Printf("Battle: %s\n", resp.Address)
	fmt.Printf("DNA: %s\n", formatDNA(dna))
	fmt.Printf("Shuffled: %s\n", formatDNA(resp.Battle.ShuffledOrder))
	fmt.Printf("Outcome: %s\n", resp.Battle.Outcome)
	printArmy(&resp.Army)
}

func handleRemove(ctx context.Context, cli *CLI, args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	signer := addSignerFlags(fs)
	zombieID := fs.Uint("zombie", 0, "Slot to clear")
	fs.Parse(args)

	priv, owner := signer.resolve(cli)
	zid := uint32(*zombieID)
	resp, err := cli.arenaClient.RemoveZombie(ctx, &arena.RemoveZombieRequest{
		Auth:     wire.Sign(priv, owner, *signer.session, time.Now(), arena.OpRemoveZombie, uint64(zid)),
		ZombieID: zid,
	})
	if err != nil {
		log.Fatalf("Failed to remove zombie: %v", err)
	}

	fmt.Printf("Removed zombie %d\n", zid)
	printArmy(&resp.Army)
}

func handleBattleInfo(ctx context.Context, cli *CLI, args []string) {
	if len(args) < 2 {
		log.Println("Usage: zombies battle-info <owner> <dna1,dna2,dna3>")
		return
	}

	owner, err := cli.keys.Resolve(args[0])
	if err != nil {
		log.Fatalf("Failed to resolve owner: %v", err)
	}
	dna, err := parseDNA(args[1])
	if err != nil {
		log.Fatalf("Invalid dna: %v", err)
	}

	resp, err := cli.arenaClient.GetBattle(ctx, &arena.GetBattleRequest{Owner: owner.String(), DNA: dna})
	if err != nil {
		log.Fatalf("Failed to get battle: %v", err)
	}

	fmt.Printf("Battle: %s\n", resp.Address)
	fmt.Printf("Zombie: %d\n", resp.Battle.ZombieID)
	fmt.Printf("Selection: %d\n", resp.Battle.Selection)
	fmt.Printf("Shuffled: %s\n", formatDNA(resp.Battle.ShuffledOrder))
	fmt.Printf("Outcome: %s\n", resp.Battle.Outcome)
	fmt.Printf("Fought at: %s\n", time.Unix(resp.Battle.CreatedAt, 0).Format(time.RFC3339))
}

func handleSessionCommand(ctx context.Context, cli *CLI, args []string) {
	if len(args) < 1 {
		printSessionHelp()
		return
	}

	switch args[0] {
	case "issue":
		handleSessionIssue(ctx, cli, args[1:])
	case "revoke":
		handleSessionRevoke(ctx, cli, args[1:])
	default:
		log.Printf("Unknown session command: %s", args[0])
		printSessionHelp()
	}
}

func handleSessionIssue(ctx context.Context, cli *CLI, args []string) {
	fs := flag.NewFlagSet("session issue", flag.ExitOnError)
	key := fs.String("key", "default", "Name of the owner key")
	signerName := fs.String("signer", "", "Session signer (key name or hex)")
	ttl := fs.Duration("ttl", time.Hour, "Session lifetime")
	fs.Parse(args)

	if *signerName == "" {
		log.Println("Usage: zombies session issue --key <owner> --signer <session-key> [--ttl 1h]")
		return
	}
	priv, err := cli.keys.Load(*key)
	if err != nil {
		log.Fatalf("Failed to load key %q: %v", *key, err)
	}
	sessionSigner, err := cli.keys.Resolve(*signerName)
	if err != nil {
		log.Fatalf("Failed to resolve signer: %v", err)
	}

	ttlSeconds := uint64(ttl.Seconds())
	resp, err := cli.authorityClient.IssueSession(ctx, &authority.IssueSessionRequest{
		Auth:       wire.Sign(priv, publicKey(priv), sessionSigner.String(), time.Now(), authority.OpIssueSession, ttlSeconds),
		TTLSeconds: ttlSeconds,
	})
	if err != nil {
		log.Fatalf("Failed to issue session: %v", err)
	}

	fmt.Printf("Session: %s\n", resp.SessionID)
	fmt.Printf("Signer: %s\n", resp.SessionSigner)
	fmt.Printf("Expires: %s\n", resp.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("Token: %s\n", resp.Token)
}

func handleSessionRevoke(ctx context.Context, cli *CLI, args []string) {
	fs := flag.NewFlagSet("session revoke", flag.ExitOnError)
	key := fs.String("key", "default", "Name of the owner key")
	id := fs.String("id", "", "Session id to revoke")
	fs.Parse(args)

	if *id == "" {
		log.Println("Usage: zombies session revoke --key <owner> --id <session-id>")
		return
	}
	priv, err := cli.keys.Load(*key)
	if err != nil {
		log.Fatalf("Failed to load key %q: %v", *key, err)
	}

	resp, err := cli.authorityClient.RevokeSession(ctx, &authority.RevokeSessionRequest{
		Auth: wire.Sign(priv, publicKey(priv), *id, time.Now(), authority.OpRevokeSession),
	})
	if err != nil {
		log.Fatalf("Failed to revoke session: %v", err)
	}

	fmt.Printf("Session revoked: %s at %s\n", resp.SessionID, resp.RevokedAt.Format(time.RFC3339))
}

// parseDNA reads three comma-separated hex values, or draws three random
// human DNA values when raw is empty.
func parseDNA(raw string) ([models.Cards]uint64, error) {
	var dna [models.Cards]uint64
	if strings.TrimSpace(raw) == "" {
		for i := range dna {
			v, err := randomHumanDNA()
			if err != nil {
				return dna, err
			}
			dna[i] = v
		}
		return dna, nil
	}

	parts := strings.Split(raw, ",")
	if len(parts) != models.Cards {
		return dna, fmt.Errorf("want %d values, got %d", models.Cards, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(p), "0x"), 16, 64)
		if err != nil {
			return dna, err
		}
		dna[i] = v
	}
	return dna, nil
}

// randomHumanDNA returns a 14 hex digit value whose leading digit is 2.
func randomHumanDNA() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return 0x20000000000000 | binary.LittleEndian.Uint64(b[:])&0x0fffffffffffff, nil
}

func formatDNA(dna [models.Cards]uint64) string {
	parts := make([]string, len(dna))
	for i, v := range dna {
		parts[i] = strconv.FormatUint(v, 16)
	}
	return strings.Join(parts, ",")
}

func printArmy(army *models.Army) {
	fmt.Printf("Owner: %s\n", army.Owner)
	fmt.Printf("Zombies: %d/%d\n", army.Count(), models.MaxZombies)
	for i, z := range army.Zombies {
		if !z.Occupied() {
			continue
		}
		rested := "never fought"
		if z.LastFight != 0 {
			rested = "last fight " + time.Unix(z.LastFight, 0).Format(time.RFC3339)
		}
		fmt.Printf("  [%d] dna=%x xp=%d %s\n", i, z.DNA, z.XP, rested)
	}
}

func printHelp() {
	fmt.Println("Usage: zombies <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  keygen       Create a named signing key")
	fmt.Println("  init         Initialize your army")
	fmt.Println("  army         Show an army")
	fmt.Println("  battle       Fight a battle")
	fmt.Println("  remove       Remove a zombie from your army")
	fmt.Println("  battle-info  Show a recorded battle")
	fmt.Println("  session      Manage session keys")
	fmt.Println("\nUse 'zombies <command> --help' for more information about a command.")
}

func printSessionHelp() {
	fmt.Println("Usage: zombies session <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  issue     Authorize a session key to act for you")
	fmt.Println("  revoke    Revoke a session")
}
