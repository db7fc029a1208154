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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-router/pkg/command"
	"jinr.ru/greenlab/go-router/pkg/config"
)

func NewStartCommand(cfg *config.Config) *cobra.Command {
	var ip, serialPath string
	var apiPort, udpPort int
	var cyclePeriod time.Duration
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start router server",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if ip != "" {
				cfg.IP = ip
			}
			if flags.Changed(ApiPortOptionName) {
				cfg.ApiPort = apiPort
			}
			if flags.Changed(UdpPortOptionName) {
				cfg.UdpPort = udpPort
			}
			if flags.Changed(CyclePeriodOptionName) {
				cfg.CyclePeriod = cyclePeriod
			}
			if serialPath != "" {
				if cfg.Serial == nil {
					cfg.Serial = config.NewDefaultConfig().Serial
				}
				cfg.Serial.Path = serialPath
			}
			return command.StartControlServer(cfg)
		},
	}
	cmd.Flags().StringVar(&ip, IPOptionName, "", fmt.Sprintf("IP to bind. E.g. %s", config.DefaultIP))
	cmd.Flags().IntVar(&apiPort, ApiPortOptionName, config.DefaultApiPort, "HTTP API port")
	cmd.Flags().IntVar(&udpPort, UdpPortOptionName, config.DefaultUdpPort, "UDP ingest port, 0 disables UDP ingest")
	cmd.Flags().StringVar(&serialPath, SerialOptionName, "", "Serial port to read the byte stream from. E.g. /dev/ttyUSB0")
	cmd.Flags().DurationVar(&cyclePeriod, CyclePeriodOptionName, config.DefaultCyclePeriodMs*time.Millisecond,
		"Router cycle period")

	return cmd
}
