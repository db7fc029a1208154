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

package frame

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-router/pkg/layers"
)

const (
	DestinationOptionName = "destination"
	ParityOptionName      = "parity"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Encode and decode router frames offline",
	}
	cmd.AddCommand(NewEncodeCommand())
	cmd.AddCommand(NewDecodeCommand())
	return cmd
}

func NewEncodeCommand() *cobra.Command {
	var destination uint8
	var parity string
	cmd := &cobra.Command{
		Use:   "encode PAYLOAD",
		Short: "Print the wire bytes of a frame",
		Example: `
# go-router frame encode --destination 0 aa55
08aa55f7`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) > 0 {
				var err error
				payload, err = hex.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("Wrong payload %q: %s", args[0], err)
				}
			}
			var data []byte
			var err error
			if parity == "" {
				data, err = layers.EncodeFrame(destination, payload)
			} else {
				p, perr := hex.DecodeString(parity)
				if perr != nil || len(p) != 1 {
					return fmt.Errorf("Wrong parity %q: must be one hexadecimal byte", parity)
				}
				data, err = layers.EncodeFrameWithParity(destination, payload, p[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
			return nil
		},
	}
	cmd.Flags().Uint8Var(&destination, DestinationOptionName, 0, "Destination 0..3")
	cmd.Flags().StringVar(&parity, ParityOptionName, "", "Parity byte (hexadecimal), computed when omitted")

	return cmd
}

func NewDecodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode BYTES",
		Short: "Split a byte stream into frames and check their parity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
			if err != nil {
				return fmt.Errorf("Wrong bytes %q: %s", args[0], err)
			}
			frames, err := layers.DecodeFrames(data)
			if err != nil {
				return err
			}
			for _, f := range frames {
				verdict := "ok"
				if !f.Valid() {
					verdict = "parity error"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "destination: %d length: %d payload: %s parity: %02x %s\n",
					f.Destination, f.Length, hex.EncodeToString(f.Data), f.Parity, verdict)
			}
			return nil
		},
	}
	return cmd
}
