package api

import (
	"crypto/md5"
	"encoding/hex"
)

type StartResponse struct {
	WrpURL string `json:"wrp_url"`
	Token  string `json:"token"`
}

type HostStatus struct {
	Sessions int `json:"sessions"`
	Max      int `json:"max"`
}

type StatusResponse struct {
	Status            string                `json:"status"`
	Sessions          int                   `json:"sessions"`
	Containers        int                   `json:"containers"`
	HostsAvailable    int                   `json:"hosts_available"`
	HostsInUse        map[string]HostStatus `json:"hosts_in_use"`
	CapacityRemaining int                   `json:"capacity_remaining"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// hostDigest obscures host addresses on the public status page; only a
// short fingerprint is exposed.
func hostDigest(host string) string {
	sum := md5.Sum([]byte(host))
	return hex.EncodeToString(sum[:])[:8]
}
