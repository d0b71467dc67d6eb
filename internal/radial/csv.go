// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package radial

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Writes the profile as comma-separated rows radius,R,G,B with
// 10 decimal places
func (p *Profile) WriteCSV(w io.Writer) error {
	for i := range p.Radius {
		_, err := fmt.Fprintf(w, "%.10f,%.10f,%.10f,%.10f\n",
			p.Radius[i], p.Value[0][i], p.Value[1][i], p.Value[2][i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Profile) WriteCSVToFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	return p.WriteCSV(w)
}

// Writes the histogram table as comma-separated rows binEdge,R,G,B
func (t *HistTable) WriteCSV(w io.Writer) error {
	for i := range t.UpperEdges {
		_, err := fmt.Fprintf(w, "%.10f,%.10f,%.10f,%.10f\n",
			t.UpperEdges[i], float64(t.Counts[0][i]), float64(t.Counts[1][i]), float64(t.Counts[2][i]))
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *HistTable) WriteCSVToFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	return t.WriteCSV(w)
}
