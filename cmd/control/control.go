/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-router/pkg/config"
)

const (
	IPOptionName          = "ip"
	ApiPortOptionName     = "api-port"
	UdpPortOptionName     = "udp-port"
	SerialOptionName      = "serial"
	CyclePeriodOptionName = "cycle-period"
	DestinationOptionName = "destination"
	PayloadOptionName     = "payload"
	ParityOptionName      = "parity"
	DataOptionName        = "data"
	GapOptionName         = "gap"
	ChannelOptionName     = "channel"
	MaxOptionName         = "max"
	LimitOptionName       = "limit"
	OutputOptionName      = "output"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Run the router server and talk to it",
	}
	cmd.AddCommand(NewStartCommand(cfg))
	cmd.AddCommand(NewStatusCommand(cfg))
	cmd.AddCommand(NewSendCommand(cfg))
	cmd.AddCommand(NewStreamCommand(cfg))
	cmd.AddCommand(NewDrainCommand(cfg))
	cmd.AddCommand(NewResetCommand(cfg))
	cmd.AddCommand(NewEventsCommand(cfg))
	return cmd
}
