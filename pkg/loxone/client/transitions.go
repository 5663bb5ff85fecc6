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

package client

import (
	"errors"
	"fmt"

	"github.com/carverauto/loxone-exporter/pkg/models"
)

var errInvalidTransition = errors.New("invalid phase transition")

// allowedTransitions lists the phases reachable from each phase. Shutdown
// may move any phase to DISCONNECTED and is not listed.
var allowedTransitions = map[models.Phase][]models.Phase{
	models.PhaseDisconnected:   {models.PhaseConnecting},
	models.PhaseConnecting:     {models.PhaseAuthenticating, models.PhaseBackoff},
	models.PhaseAuthenticating: {models.PhaseDiscovering, models.PhaseBackoff},
	models.PhaseDiscovering:    {models.PhaseSubscribing, models.PhaseBackoff},
	models.PhaseSubscribing:    {models.PhaseConnected, models.PhaseBackoff},
	models.PhaseConnected:      {models.PhaseBackoff},
	models.PhaseBackoff:        {models.PhaseConnecting},
}

func canTransition(from, to models.Phase) bool {
	if to == models.PhaseDisconnected {
		return true
	}

	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

func checkTransition(from, to models.Phase) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", errInvalidTransition, from, to)
	}

	return nil
}
