package keepself

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
)

// Identity is the record a host passes to each worker it starts
type Identity struct {
	// SessionID identifies the worker incarnation
	SessionID uint32
	// ParentPID is the process id of the host
	ParentPID int32
	// Features are the host's feature flags
	Features Features
}

// EncodeIdentity returns the base64 form of id, safe for a single argument value.
//
// Layout (little endian):
//
//	[0]     sentinel 0x00
//	[1:5]   session id
//	[5:9]   parent pid
//	[9:13]  features
func EncodeIdentity(id Identity) string {
	var buf [IdentitySize]byte
	buf[0] = identitySentinel
	binary.LittleEndian.PutUint32(buf[identitySessionStart:identitySessionEnd], id.SessionID)
	binary.LittleEndian.PutUint32(buf[identityParentStart:identityParentEnd], uint32(id.ParentPID))
	binary.LittleEndian.PutUint32(buf[identityFeaturesStart:identityFeaturesEnd], uint32(id.Features))
	return base64.StdEncoding.EncodeToString(buf[:])
}

// DecodeIdentity parses a value produced by EncodeIdentity.
// Any other input yields ErrInvalidIdentity and a zero Identity.
func DecodeIdentity(value string) (Identity, error) {
	if strings.TrimSpace(value) == "" {
		return Identity{}, ErrInvalidIdentity
	}

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return Identity{}, ErrInvalidIdentity
	}
	if len(data) < IdentitySize || data[0] != identitySentinel {
		return Identity{}, ErrInvalidIdentity
	}

	return Identity{
		SessionID: binary.LittleEndian.Uint32(data[identitySessionStart:identitySessionEnd]),
		ParentPID: int32(binary.LittleEndian.Uint32(data[identityParentStart:identityParentEnd])),
		Features:  Features(binary.LittleEndian.Uint32(data[identityFeaturesStart:identityFeaturesEnd])),
	}, nil
}
