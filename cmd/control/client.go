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
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-router/pkg/command"
	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/router"
	"jinr.ru/greenlab/go-router/pkg/srv"
)

func printSnapshot(out io.Writer, st *srv.Snapshot) {
	fmt.Fprintf(out, "Cycle: %d\n", st.Cycle)
	fmt.Fprintf(out, "State: %s busy: %t error: %t\n", st.State, st.Busy, st.Error)
	for c := 0; c < router.NumChannels; c++ {
		fmt.Fprintf(out, "Channel %d: valid: %t bytes: %d\n", c, st.Valid[c], st.Occupancy[c])
	}
	fmt.Fprintf(out, "Queued bursts: %d\n", st.Queued)
}

func parseHex(name, value string) ([]byte, error) {
	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("Wrong %s %q: %s", name, value, err)
	}
	return data, nil
}

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print router flags and buffer occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := command.NewApiClient(cfg).Status()
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), st)
			return nil
		},
	}
	return cmd
}

func NewSendCommand(cfg *config.Config) *cobra.Command {
	var destination int
	var payload, parity string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one frame to the router",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(PayloadOptionName, payload)
			if err != nil {
				return err
			}
			var p *byte
			if parity != "" {
				b, err := parseHex(ParityOptionName, parity)
				if err != nil {
					return err
				}
				if len(b) != 1 {
					return fmt.Errorf("Wrong parity %q: must be one byte", parity)
				}
				p = &b[0]
			}
			resp, err := command.NewApiClient(cfg).SendFrame(destination, data, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued frame: %s\n", resp.Bytes)
			return nil
		},
	}
	cmd.Flags().IntVar(&destination, DestinationOptionName, 0, "Destination channel 0..2, 3 is absorbed")
	cmd.Flags().StringVar(&payload, PayloadOptionName, "", "Payload (hexadecimal)")
	cmd.Flags().StringVar(&parity, ParityOptionName, "", "Parity byte (hexadecimal), computed when omitted")

	return cmd
}

func NewStreamCommand(cfg *config.Config) *cobra.Command {
	var data string
	var gap bool
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Send raw bytes to the router",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseHex(DataOptionName, data)
			if err != nil {
				return err
			}
			resp, err := command.NewApiClient(cfg).SendStream(b, gap)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued bytes: %s\n", resp.Bytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, DataOptionName, "", "Bytes (hexadecimal)")
	cmd.MarkFlagRequired(DataOptionName)
	cmd.Flags().BoolVar(&gap, GapOptionName, false, "Leave one idle cycle after the bytes")

	return cmd
}

func NewDrainCommand(cfg *config.Config) *cobra.Command {
	var channel, max int
	var output string
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Read bytes from a channel buffer",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := command.NewApiClient(cfg).Drain(channel, max)
			if err != nil {
				return err
			}
			if output == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Channel %d: %s\n", channel, hex.EncodeToString(data))
				return nil
			}
			w, err := command.NewWriter(output)
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				w.Flush()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Channel %d: %d bytes appended to %s\n", channel, len(data), output)
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&channel, ChannelOptionName, 0, "Channel 0..2")
	cmd.Flags().IntVar(&max, MaxOptionName, 0, "Maximum number of bytes, 0 empties the buffer")
	cmd.Flags().StringVar(&output, OutputOptionName, "", "Append raw bytes to this file instead of printing them")

	return cmd
}

func NewResetCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the router",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := command.NewApiClient(cfg).Reset()
			if err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), st)
			return nil
		},
	}
	return cmd
}

func NewEventsCommand(cfg *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recent router events",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := command.NewApiClient(cfg).Events(limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", e.Time, e.Event)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, LimitOptionName, 20, "Number of most recent events")

	return cmd
}
