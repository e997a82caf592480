/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lifecycle

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/carverauto/meshmetricsd/pkg/logger"
)

// DropPrivileges switches the process to the named group and user, group
// first since the user switch is irreversible. A no-op when not running as
// root; any failure is fatal to startup because continuing as root would
// defeat the point.
func DropPrivileges(username, groupname string, log logger.Logger) error {
	if os.Geteuid() != 0 {
		return nil
	}

	if groupname != "" {
		grp, err := user.LookupGroup(groupname)
		if err != nil {
			return fmt.Errorf("group not found: %s: %w", groupname, err)
		}

		gid, err := strconv.Atoi(grp.Gid)
		if err != nil {
			return fmt.Errorf("invalid gid for group %s: %w", groupname, err)
		}

		if err := unix.Setgroups([]int{gid}); err != nil {
			return fmt.Errorf("failed to drop supplementary groups: %w", err)
		}

		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("cannot change to group %s: %w", groupname, err)
		}

		log.Info().Str("group", groupname).Msg("Dropped to group")
	}

	if username != "" {
		usr, err := user.Lookup(username)
		if err != nil {
			return fmt.Errorf("user not found: %s: %w", username, err)
		}

		uid, err := strconv.Atoi(usr.Uid)
		if err != nil {
			return fmt.Errorf("invalid uid for user %s: %w", username, err)
		}

		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("cannot change to user %s: %w", username, err)
		}

		log.Info().Str("user", username).Msg("Dropped to user")
	}

	return nil
}
