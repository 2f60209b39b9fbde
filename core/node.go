package core

import (
	"fmt"
	"strings"
)

// Consistency is the replication policy a replica runs under.
type Consistency string

const (
	ConsistencyStrong   Consistency = "strong"
	ConsistencyCausal   Consistency = "causal"
	ConsistencyEventual Consistency = "eventual"
)

// DefaultConsistency is applied when a node does not declare a policy.
const DefaultConsistency = ConsistencyStrong

// ParseConsistency accepts the policy names plus the older medium/low aliases.
func ParseConsistency(s string) (Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultConsistency, nil
	case "strong", "quorum", "high":
		return ConsistencyStrong, nil
	case "causal", "medium":
		return ConsistencyCausal, nil
	case "eventual", "low":
		return ConsistencyEventual, nil
	default:
		return "", fmt.Errorf("unknown consistency %q", s)
	}
}

// Location tags where a replica lives; connections between equal locations are local.
type Location string

const (
	LocationHome    Location = "home"
	LocationWork    Location = "work"
	LocationMobile  Location = "mobile"
	LocationCloud   Location = "cloud"
	LocationUnknown Location = "unknown"
)

// ReplicaType is the informational device type of a replica.
type ReplicaType string

const (
	ReplicaDesktop ReplicaType = "desktop"
	ReplicaStorage ReplicaType = "storage"
	ReplicaLaptop  ReplicaType = "laptop"
	ReplicaTablet  ReplicaType = "tablet"
	ReplicaPhone   ReplicaType = "smartphone"
)

// DefaultReplicaType is used for nodes without a type.
const DefaultReplicaType = ReplicaStorage

// ConnectionKind selects how a connection computes latency.
type ConnectionKind string

const (
	ConnectionConstant ConnectionKind = "constant"
	ConnectionVariable ConnectionKind = "variable"
	ConnectionNormal   ConnectionKind = "normal"
)

// ParseConnectionKind validates a connection kind; empty means constant.
func ParseConnectionKind(s string) (ConnectionKind, error) {
	switch ConnectionKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConnectionConstant:
		return ConnectionConstant, nil
	case ConnectionVariable:
		return ConnectionVariable, nil
	case ConnectionNormal:
		return ConnectionNormal, nil
	default:
		return "", fmt.Errorf("unknown connection kind %q", s)
	}
}

// Area partitions links into wide and local area.
type Area string

const (
	AreaWide  Area = "wide"
	AreaLocal Area = "local"
)
