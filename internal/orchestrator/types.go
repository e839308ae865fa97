package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Internal ports the wrp process listens on inside its container; the
// allocated host port is mapped onto one of these depending on whether
// the client asked for TLS.
const (
	wrpInternalPort    = 8080
	wrpInternalPortTLS = 8081
)

const containerNamePrefix = "wrp_session_"

// launchCommand is the container invocation: TLS material bind-mounted,
// deterministic name, host port published, and the per-session token
// passed to the wrp process.
const launchCommand = "docker run --rm -d " +
	"--mount type=bind,source=%s,target=/cert.crt " +
	"--mount type=bind,source=%s,target=/private.key " +
	"--name %s " +
	"-p %d:%d " +
	"%s -O -n " +
	"-token %s " +
	"-log /dev/null"

const listContainersCommand = "docker ps --format '{{.Names}}' --filter name=" + containerNamePrefix

// containerIDPattern is the only accepted shape of a successful
// `docker run -d`: the full container id on a line of its own.
var containerIDPattern = regexp.MustCompile(`^[a-z0-9]{64}$`)

func containerName(sessionID int64) string {
	return fmt.Sprintf("%s%d", containerNamePrefix, sessionID)
}

func isContainerID(output string) bool {
	return containerIDPattern.MatchString(output)
}

// sessionIDFromName extracts the session id embedded in a container
// name. The second return is false for names outside our scheme.
func sessionIDFromName(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(name), containerNamePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
