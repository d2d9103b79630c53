package segment

// DefaultClasses is the rhythm label set offered to annotators.
var DefaultClasses = []Class{
	{Value: "SR", Name: "sinus rhythm", Description: "sinus rhythm"},
	{Value: "AFIB", Name: "atrial fibrillation", Description: "atrial fibrillation"},
	{Value: "STACH", Name: "sinus tachycardia", Description: "sinus tachycardia"},
	{Value: "SARRH", Name: "sinus arrhythmia", Description: "sinus arrhythmia"},
	{Value: "SBRAD", Name: "sinus bradycardia", Description: "sinus bradycardia"},
	{Value: "PACE", Name: "normal functioning artificial pacemaker", Description: "normal functioning artificial pacemaker"},
	{Value: "SVARR", Name: "supraventricular arrhythmia", Description: "supraventricular arrhythmia"},
	{Value: "BIGU", Name: "bigeminal pattern", Description: "bigeminal pattern (unknown origin, SV or Ventricular)"},
	{Value: "AFLT", Name: "atrial flutter", Description: "atrial flutter"},
	{Value: "SVTAC", Name: "supraventricular tachycardia", Description: "supraventricular tachycardia"},
	{Value: "PSVT", Name: "paroxysmal supraventricular tachycardia", Description: "paroxysmal supraventricular tachycardia"},
	{Value: "TRIGU", Name: "trigeminal pattern", Description: "trigeminal pattern (unknown origin, SV or Ventricular)"},
	{Value: LabelAbstain, Name: "abstain", Description: "unsure/none of the above"},
}

// LookupClass finds a class by value in classes.
func LookupClass(classes []Class, value string) (Class, bool) {
	for _, c := range classes {
		if c.Value == value {
			return c, true
		}
	}
	return Class{}, false
}
