// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func runFactor(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	factors := a.svc.Factor(cmd.Context(), args[0], !factorAll)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], strings.Join(factors, " "))
	return nil
}

func runIsPrime(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	verdict := "not prime"
	if a.svc.IsPrime(cmd.Context(), args[0]) {
		verdict = "prime"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[0], verdict)
	return nil
}

func runPrimes(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	sum := a.svc.PrimeSummary()
	fmt.Fprintf(w, "bound:      %d\n", sum.Bound)
	fmt.Fprintf(w, "count:      %d\n", sum.Count)
	fmt.Fprintf(w, "largest:    %d\n", sum.Largest)
	fmt.Fprintf(w, "max digits: %d\n", sum.MaxDigits)

	if primesLimit > 0 {
		ps := a.svc.Primes(primesLimit)
		parts := make([]string, len(ps))
		for i, p := range ps {
			parts[i] = fmt.Sprint(p)
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
	return nil
}
