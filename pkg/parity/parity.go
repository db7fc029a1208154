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

// Package parity implements the XOR check byte carried at the end of every frame.
package parity

// Compute returns the XOR of all bytes in the given chunks, in order.
func Compute(chunks ...[]byte) byte {
	var p byte
	for _, chunk := range chunks {
		for _, b := range chunk {
			p ^= b
		}
	}
	return p
}

// Verify reports whether the XOR of data equals check.
func Verify(data []byte, check byte) bool {
	return Compute(data) == check
}
