package workflow

import (
	"strings"
	"testing"
	"time"
)

func TestArmyWorkflowEndToEnd(t *testing.T) {
	alice := uniqueName("alice")

	output := runCLIOrFail(t, "keygen", alice)
	if extractField(output, "Public key") == "" {
		t.Fatalf("Expected public key in keygen output, got: %s", output)
	}

	output = runCLIOrFail(t, "init", "--key", alice)
	if !strings.Contains(output, "Army initialized") || !strings.Contains(output, "Zombies: 1/8") {
		t.Fatalf("Expected initialized army with one zombie, got: %s", output)
	}

	runCLIExpectFailure(t, "init", "--key", alice)

	dna := humanDNA(time.Now().UnixNano() & 0xffff)
	output = runCLIOrFail(t, "battle", "--key", alice, "--zombie", "0", "--selection", "1", "--dna", dna)
	if extractField(output, "Outcome") != "won" {
		t.Fatalf("Expected a win against human DNA, got: %s", output)
	}
	if !strings.Contains(output, "Zombies: 2/8") {
		t.Fatalf("Expected a second zombie after the win, got: %s", output)
	}

	output = runCLIOrFail(t, "battle-info", alice, dna)
	if extractField(output, "Outcome") != "won" || extractField(output, "Selection") != "1" {
		t.Fatalf("Expected recorded battle, got: %s", output)
	}

	// Zombie 0 is resting now.
	output = runCLIExpectFailure(t, "battle", "--key", alice, "--zombie", "0", "--selection", "0")
	if !strings.Contains(output, "ZombieNotReady") {
		t.Fatalf("Expected cooldown rejection, got: %s", output)
	}

	output = runCLIOrFail(t, "remove", "--key", alice, "--zombie", "1")
	if !strings.Contains(output, "Zombies: 1/8") {
		t.Fatalf("Expected one zombie after removal, got: %s", output)
	}

	output = runCLIOrFail(t, "army", alice)
	if !strings.Contains(output, "Zombies: 1/8") {
		t.Fatalf("Expected army view with one zombie, got: %s", output)
	}
}

func TestArmyWorkflowRejectsForeignOwner(t *testing.T) {
	owner := uniqueName("owner")
	intruder := uniqueName("intruder")
	runCLIOrFail(t, "keygen", owner)
	runCLIOrFail(t, "keygen", intruder)
	runCLIOrFail(t, "init", "--key", owner)

	runCLIExpectFailure(t, "remove", "--key", intruder, "--owner", owner, "--zombie", "0")
	runCLIExpectFailure(t, "battle", "--key", intruder, "--owner", owner, "--zombie", "0", "--selection", "0")

	output := runCLIOrFail(t, "army", owner)
	if !strings.Contains(output, "Zombies: 1/8") {
		t.Fatalf("Expected the army untouched, got: %s", output)
	}
}
