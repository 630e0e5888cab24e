package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"firstdeposit/chain"
)

// Contract names as emitted by the Hardhat compiler.
const (
	TokenContract     = "Token"
	DelegateContract  = "CErc20Delegate"
	DelegatorContract = "CErc20Delegator"
)

var errArtifactName = errors.New("contracts: artifact contract name mismatch")

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a Hardhat artifact JSON file.
func LoadArtifact(path string) (Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("contracts: read artifact: %w", err)
	}
	var decoded hardhatArtifact
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Artifact{}, fmt.Errorf("contracts: decode artifact %s: %w", path, err)
	}
	if strings.TrimSpace(decoded.ContractName) == "" {
		return Artifact{}, fmt.Errorf("contracts: artifact %s has no contractName", path)
	}
	parsed, err := abi.JSON(bytes.NewReader(decoded.ABI))
	if err != nil {
		return Artifact{}, fmt.Errorf("contracts: parse abi of %s: %w", decoded.ContractName, err)
	}
	var code []byte
	if trimmed := strings.TrimSpace(decoded.Bytecode); trimmed != "" && trimmed != "0x" {
		code, err = hexutil.Decode(trimmed)
		if err != nil {
			return Artifact{}, fmt.Errorf("contracts: decode bytecode of %s: %w", decoded.ContractName, err)
		}
	}
	return Artifact{ContractName: decoded.ContractName, ABI: parsed, Bytecode: code}, nil
}

// Deployment binds constructor arguments to the artifact.
func (a Artifact) Deployment(args ...interface{}) chain.Deployment {
	parsed := a.ABI
	return chain.Deployment{
		Name:     a.ContractName,
		ABI:      &parsed,
		Bytecode: a.Bytecode,
		Args:     args,
	}
}

// ArtifactSet holds the three contracts the scenario deploys.
type ArtifactSet struct {
	Token     Artifact
	Delegate  Artifact
	Delegator Artifact
}

// DefaultArtifacts returns ABI-only artifacts. They can only be deployed on a
// backend that instantiates contracts by name, such as the simulator.
func DefaultArtifacts() ArtifactSet {
	return ArtifactSet{
		Token:     Artifact{ContractName: TokenContract, ABI: tokenABI},
		Delegate:  Artifact{ContractName: DelegateContract, ABI: delegateABI},
		Delegator: Artifact{ContractName: DelegatorContract, ABI: cTokenABI},
	}
}

// LoadArtifacts reads Token.json, CErc20Delegate.json and CErc20Delegator.json
// from dir. Both the flat layout and Hardhat's artifacts/contracts/<File>.sol/
// layout are searched.
func LoadArtifacts(dir string) (ArtifactSet, error) {
	var set ArtifactSet
	targets := []struct {
		name string
		dst  *Artifact
	}{
		{TokenContract, &set.Token},
		{DelegateContract, &set.Delegate},
		{DelegatorContract, &set.Delegator},
	}
	for _, target := range targets {
		path, err := findArtifact(dir, target.name)
		if err != nil {
			return ArtifactSet{}, err
		}
		artifact, err := LoadArtifact(path)
		if err != nil {
			return ArtifactSet{}, err
		}
		if artifact.ContractName != target.name {
			return ArtifactSet{}, fmt.Errorf("%w: %s contains %s", errArtifactName, path, artifact.ContractName)
		}
		*target.dst = artifact
	}
	return set, nil
}

func findArtifact(dir, name string) (string, error) {
	candidates := []string{
		filepath.Join(dir, name+".json"),
		filepath.Join(dir, name+".sol", name+".json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	var found string
	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name+".json" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("contracts: search artifacts in %s: %w", dir, walkErr)
	}
	if found == "" {
		return "", fmt.Errorf("contracts: artifact %s not found under %s", name, dir)
	}
	return found, nil
}
